// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides the HTTP gate in front of the dispatch
// engine: shared-secret bearer authentication followed by per-token rate
// limiting. The gate runs before any cache lookup and before any enqueue,
// so rejected requests never consume engine capacity.
//
//	Request
//	   │
//	   ▼
//	APIKeyAuth ──► 401 {"error":{..., "type":"unauthorized"}}
//	   │
//	   ▼
//	RateLimiter.Middleware ──► 429 {"error":{..., "type":"rate_limit_exceeded"}}
//	   │
//	   ▼
//	Handler
//
// With no API keys configured both layers wave everything through, which
// keeps local single-user deployments zero-config.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianServe/services/gateway/config"
	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
)

// APIKeyAuth creates a Gin middleware that authenticates requests against
// the configured API key set.
//
// # Description
//
// Extracts the bearer token from the Authorization header and verifies it
// in constant time against every configured key. When no keys are
// configured, every request passes untouched. The verified token is not
// stored in the context; downstream consumers that need it (the rate
// limiter) re-extract it from the header.
//
// # Inputs
//
//   - cfg: Gateway configuration holding the sealed key set. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware that aborts with 401 on a missing or
//     unknown token.
//
// # Thread Safety
//
// Thread-safe. Key verification opens the enclave per call.
func APIKeyAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.AuthEnabled() {
			c.Next()
			return
		}

		token := BearerToken(c)
		if !cfg.VerifyAPIKey(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				datatypes.NewErrorEnvelope(datatypes.ErrorTypeUnauthorized, "Unauthorized"))
			return
		}

		c.Next()
	}
}

// BearerToken extracts the token from the Authorization header. Exported
// because the WebSocket handler charges the rate limiter per message with
// the connection's token.
//
// Expected format: "Bearer <token>", scheme case-insensitive per RFC 7235.
// Returns empty string when the header is missing or malformed.
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
