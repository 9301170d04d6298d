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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianServe/services/gateway/observability"
	"github.com/AleutianAI/AleutianServe/services/gateway/usage"
)

// HandleUsage serves GET /admin/usage: per-endpoint totals plus the most
// recent records from the in-memory ring.
func HandleUsage(recorder *usage.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, recorder.Snapshot())
	}
}

// recordUsage appends one ledger record for a finished API request. A nil
// recorder is a no-op so handler tests can skip the ledger entirely.
func recordUsage(recorder *usage.Recorder, endpoint observability.Endpoint,
	model string, status int, start time.Time, cached bool) {

	if recorder == nil {
		return
	}
	recorder.Record(usage.Record{
		Timestamp: start,
		Endpoint:  string(endpoint),
		Model:     model,
		Status:    status,
		LatencyMS: time.Since(start).Milliseconds(),
		Cached:    cached,
	})
}
