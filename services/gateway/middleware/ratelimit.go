// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
)

// RateLimiter applies a per-token token-bucket quota.
//
// # Description
//
// Each distinct bearer token gets its own bucket refilling at quota/minute
// with a burst of one full quota, so a token may spend its whole minute
// allowance at once but not exceed it. Buckets are created on first sight
// and never expire; the table is bounded by the configured key set in
// authenticated deployments.
//
// Requests that carry no token are not limited. The limiter sits behind
// APIKeyAuth, so in authenticated deployments a token-less request never
// reaches it; without auth there is no stable identity worth throttling.
//
// # Thread Safety
//
// Safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	quota   rate.Limit
	burst   int
}

// NewRateLimiter creates a limiter granting perMinute requests per token
// per minute. Non-positive values fall back to the default quota.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		quota:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
	}
}

// Middleware returns the Gin handler enforcing the quota.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		if !r.limiterFor(token).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				datatypes.NewErrorEnvelope(datatypes.ErrorTypeRateLimited, "Rate limit exceeded"))
			return
		}

		c.Next()
	}
}

// Allow consumes one slot for token, creating its bucket on first use.
// Exposed for callers outside the HTTP path (the WebSocket handler charges
// per message, not per connection).
func (r *RateLimiter) Allow(token string) bool {
	if token == "" {
		return true
	}
	return r.limiterFor(token).Allow()
}

func (r *RateLimiter) limiterFor(token string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, ok := r.buckets[token]
	if !ok {
		limiter = rate.NewLimiter(r.quota, r.burst)
		r.buckets[token] = limiter
	}
	return limiter
}
