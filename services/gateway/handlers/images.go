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
	"encoding/base64"
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

var imagesTracer = otel.Tracer("aleutian.gateway.handlers")

// HandleImagesGenerations serves POST /v1/images/generations. The engine
// returns raw image bytes; this layer base64-encodes each one into a
// b64_json entry and stamps the response creation time. Backend failures
// map to 400 on this surface.
func HandleImagesGenerations(eng *engine.Engine, recorder *usage.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := imagesTracer.Start(c.Request.Context(), "HandleImagesGenerations")
		defer span.End()

		var req datatypes.ImagesGenerationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid request body")
			slog.Error("Failed to parse the images request", "error", err)
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
		images, err := eng.ProcessImages(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			status, envelope := engineErrorResponse(err, http.StatusBadRequest)
			recordUsage(recorder, observability.EndpointImages, req.Model, status, start, false)
			c.JSON(status, envelope)
			return
		}

		resp := datatypes.ImagesGenerationResponse{
			Created: time.Now().Unix(),
			Data:    make([]datatypes.ImageDataObject, 0, len(images)),
		}
		for _, img := range images {
			resp.Data = append(resp.Data, datatypes.ImageDataObject{
				B64JSON: base64.StdEncoding.EncodeToString(img),
			})
		}

		recordUsage(recorder, observability.EndpointImages, req.Model, http.StatusOK, start, false)
		c.JSON(http.StatusOK, resp)
	}
}
