// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianServe/services/gateway/engine"
	"github.com/AleutianAI/AleutianServe/services/gateway/observability"
	"github.com/AleutianAI/AleutianServe/services/gateway/usage"
)

var embeddingsTracer = otel.Tracer("aleutian.gateway.handlers")

// HandleEmbeddings serves POST /v1/embeddings. Backend failures map to 400
// on this surface, not 502.
func HandleEmbeddings(eng *engine.Engine, recorder *usage.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := embeddingsTracer.Start(c.Request.Context(), "HandleEmbeddings")
		defer span.End()

		var req datatypes.EmbeddingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid request body")
			slog.Error("Failed to parse the embeddings request", "error", err)
			c.JSON(http.StatusBadRequest,
				datatypes.NewErrorEnvelope(datatypes.ErrorTypeInvalidRequest, "invalid request body"))
			return
		}
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "validation failed")
			c.JSON(http.StatusBadRequest,
				datatypes.NewErrorEnvelope(datatypes.ErrorTypeInvalidRequest, err.Error()))
			return
		}

		start := time.Now()
		resp, err := eng.ProcessEmbeddings(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			status, envelope := engineErrorResponse(err, http.StatusBadRequest)
			recordUsage(recorder, observability.EndpointEmbeddings, req.Model, status, start, false)
			c.JSON(status, envelope)
			return
		}

		recordUsage(recorder, observability.EndpointEmbeddings, req.Model, http.StatusOK, start, false)
		c.JSON(http.StatusOK, resp)
	}
}
