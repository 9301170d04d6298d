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
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianServe/services/gateway/engine"
	"github.com/AleutianAI/AleutianServe/services/gateway/middleware"
	"github.com/AleutianAI/AleutianServe/services/gateway/observability"
	"github.com/AleutianAI/AleutianServe/services/gateway/usage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// 1MB buffers: chat requests carrying data-URI images get large.
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 1024 * 1024,
}

func sendWSError(ws *websocket.Conn, errorType, message string) error {
	err := ws.WriteJSON(datatypes.NewErrorEnvelope(errorType, message))
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleChatWebSocket serves GET /v1/chat/ws.
//
// # Description
//
// Upgrades the connection and then loops: each client text message is one
// chat completion request, answered with the same payload sequence the SSE
// surface streams (role chunk, content chunk, done chunk, [DONE]), each as
// its own text message. Requests always take the streaming path through
// the engine regardless of their stream flag.
//
// Decode and validation failures answer with an error envelope message and
// keep the connection open. The rate limiter is charged per request
// message, using the bearer token presented at upgrade time; an exhausted
// quota likewise answers with an envelope rather than closing.
func HandleChatWebSocket(eng *engine.Engine, limiter *middleware.RateLimiter,
	recorder *usage.Recorder) gin.HandlerFunc {

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		// The auth middleware already verified this token; keep it as the
		// connection's rate-limit identity.
		token := middleware.BearerToken(c)
		slog.Info("Websocket chat client connected")

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				slog.Info("Websocket client disconnected", "error", err.Error())
				return
			}

			// Token-less connections carry no stable identity, same as the
			// HTTP middleware.
			if limiter != nil && token != "" && !limiter.Allow(token) {
				if sendWSError(ws, datatypes.ErrorTypeRateLimited, "Rate limit exceeded") != nil {
					return
				}
				continue
			}

			var req datatypes.ChatCompletionRequest
			if err := json.Unmarshal(data, &req); err != nil {
				if sendWSError(ws, datatypes.ErrorTypeInvalidRequest, "invalid request body") != nil {
					return
				}
				continue
			}
			if err := req.Validate(); err != nil {
				if sendWSError(ws, datatypes.ErrorTypeInvalidRequest, err.Error()) != nil {
					return
				}
				continue
			}

			start := time.Now()
			stream, err := eng.ProcessChatStream(c.Request.Context(), req)
			if err != nil {
				if sendWSError(ws, datatypes.ErrorTypeInternal, err.Error()) != nil {
					return
				}
				continue
			}

			for payload := range stream {
				if err := ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
					slog.Warn("Failed to write WebSocket chunk", "error", err)
					drainStream(stream)
					return
				}
			}

			recordUsage(recorder, observability.EndpointWebSocket, req.Model, http.StatusOK, start, false)
		}
	}
}
