// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers holds the gin handlers for the OpenAI-compatible API
// surface and the admin endpoints. Handlers validate, hand work to the
// dispatch engine, and translate engine errors into HTTP statuses; they
// never talk to model backends directly.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianServe/services/gateway/engine"
	"github.com/AleutianAI/AleutianServe/services/gateway/observability"
	"github.com/AleutianAI/AleutianServe/services/gateway/usage"
)

var chatTracer = otel.Tracer("aleutian.gateway.handlers")

// HandleChatCompletions serves POST /v1/chat/completions.
//
// # Description
//
// Parses and validates an OpenAI-style chat completion request, then hands
// it to the engine. stream=false awaits the buffered reply and returns it
// as JSON; stream=true switches the response to text/event-stream and
// relays every chunk payload the engine emits, ending with the [DONE]
// sentinel frame.
//
// # Outputs
//
// HTTP statuses:
//   - 200: Completion (JSON) or SSE stream. A streaming request whose
//     model routing fails still returns 200 with an empty stream; the
//     engine closes the channel without emissions.
//   - 400: Malformed body, validation failure, unknown model, or a
//     text-only request against a vision-only model.
//   - 502: Backend failure surfaced in strict mode.
//   - 500: Engine stopped or reply lost.
func HandleChatCompletions(eng *engine.Engine, recorder *usage.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChatCompletions")
		defer span.End()

		var req datatypes.ChatCompletionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid request body")
			slog.Error("Failed to parse the chat request", "error", err)
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

		span.SetAttributes(
			attribute.String("chat.model", req.Model),
			attribute.Bool("chat.stream", req.Streaming()),
		)

		if req.Streaming() {
			streamChatCompletion(ctx, c, eng, recorder, req)
			return
		}

		start := time.Now()
		resp, cached, err := eng.ProcessChat(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			status, envelope := engineErrorResponse(err, http.StatusBadGateway)
			recordUsage(recorder, observability.EndpointChat, req.Model, status, start, false)
			c.JSON(status, envelope)
			return
		}

		recordUsage(recorder, observability.EndpointChat, req.Model, http.StatusOK, start, cached)
		c.JSON(http.StatusOK, resp)
	}
}

// streamChatCompletion relays the engine's chunk payloads as SSE frames.
// By the time the first frame is written the status is committed to 200,
// so in-flight failures surface inside the stream, never as a status.
func streamChatCompletion(ctx context.Context, c *gin.Context, eng *engine.Engine,
	recorder *usage.Recorder, req datatypes.ChatCompletionRequest) {

	start := time.Now()
	stream, err := eng.ProcessChatStream(ctx, req)
	if err != nil {
		slog.Error("Failed to enqueue streaming chat", "error", err)
		recordUsage(recorder, observability.EndpointChatStream, req.Model, http.StatusInternalServerError, start, false)
		c.JSON(http.StatusInternalServerError,
			datatypes.NewErrorEnvelope(datatypes.ErrorTypeInternal, err.Error()))
		return
	}

	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		slog.Error("Streaming unsupported by response writer", "error", err)
		drainStream(stream)
		c.JSON(http.StatusInternalServerError,
			datatypes.NewErrorEnvelope(datatypes.ErrorTypeInternal, "streaming unsupported"))
		return
	}

	SetSSEHeaders(c.Writer)

	for payload := range stream {
		if werr := writer.WriteData(payload); werr != nil {
			slog.Warn("Client left mid-stream", "error", werr)
			drainStream(stream)
			break
		}
	}

	recordUsage(recorder, observability.EndpointChatStream, req.Model, http.StatusOK, start, false)
}

// drainStream consumes leftover emissions so the worker never blocks on a
// receiver that stopped reading.
func drainStream(stream <-chan string) {
	for range stream {
	}
}

// engineErrorResponse maps an engine error to an HTTP status and error
// envelope. Routing failures (unknown model, missing images) are client
// errors; backend failures take the surface-specific status the caller
// passes in (502 for strict buffered chat, 400 for embeddings and images);
// everything else is internal.
func engineErrorResponse(err error, backendStatus int) (int, datatypes.ErrorEnvelope) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound) || errors.Is(err, engine.ErrRequiresImages):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrBackend):
		status = backendStatus
	}

	errorType := datatypes.ErrorTypeInternal
	if status < http.StatusInternalServerError {
		errorType = datatypes.ErrorTypeInvalidRequest
	}
	return status, datatypes.NewErrorEnvelope(errorType, err.Error())
}
