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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianServe/services/gateway/engine"
)

// HealthCheck reports process liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleListModels serves GET /admin/models: the four registry name lists.
func HandleListModels(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, eng.ListModels())
	}
}

// HandleLoadModel serves POST /admin/models/load. An unusable provider or
// path degrades to the dummy backend inside the loader, so the only client
// errors here are a bad body or an unknown kind.
func HandleLoadModel(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.LoadModelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest,
				datatypes.NewErrorEnvelope(datatypes.ErrorTypeInvalidRequest, "invalid request body"))
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest,
				datatypes.NewErrorEnvelope(datatypes.ErrorTypeInvalidRequest, err.Error()))
			return
		}

		if err := eng.LoadModel(req.Kind, req.Model, req.Provider, req.Path); err != nil {
			slog.Warn("Model load rejected", "model", req.Model, "kind", req.Kind, "error", err)
			c.JSON(http.StatusBadRequest,
				datatypes.NewErrorEnvelope(datatypes.ErrorTypeInvalidRequest, err.Error()))
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// HandleUnloadModel serves POST /admin/models/unload. Unloading a name that
// was never loaded succeeds; only an unknown kind is an error.
func HandleUnloadModel(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.UnloadModelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest,
				datatypes.NewErrorEnvelope(datatypes.ErrorTypeInvalidRequest, "invalid request body"))
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest,
				datatypes.NewErrorEnvelope(datatypes.ErrorTypeInvalidRequest, err.Error()))
			return
		}

		if err := eng.UnloadModel(req.Kind, req.Model); err != nil {
			slog.Warn("Model unload rejected", "model", req.Model, "kind", req.Kind, "error", err)
			c.JSON(http.StatusBadRequest,
				datatypes.NewErrorEnvelope(datatypes.ErrorTypeInvalidRequest, err.Error()))
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
