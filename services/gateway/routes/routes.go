// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianServe/services/gateway/config"
	"github.com/AleutianAI/AleutianServe/services/gateway/engine"
	"github.com/AleutianAI/AleutianServe/services/gateway/handlers"
	"github.com/AleutianAI/AleutianServe/services/gateway/middleware"
	"github.com/AleutianAI/AleutianServe/services/gateway/usage"
)

func SetupRoutes(router *gin.Engine, cfg *config.Config, eng *engine.Engine,
	limiter *middleware.RateLimiter, recorder *usage.Recorder) {

	router.GET("/health", handlers.HealthCheck)
	// Exposition sits outside the auth gate so scrapers need no token.
	router.GET("/admin/metrics", gin.WrapH(promhttp.Handler()))

	gate := []gin.HandlerFunc{middleware.APIKeyAuth(cfg), limiter.Middleware()}

	// OpenAI-compatible inference surface
	v1 := router.Group("/v1", gate...)
	{
		v1.POST("/chat/completions", handlers.HandleChatCompletions(eng, recorder))
		v1.GET("/chat/ws", handlers.HandleChatWebSocket(eng, limiter, recorder))
		v1.POST("/embeddings", handlers.HandleEmbeddings(eng, recorder))
		v1.POST("/images/generations", handlers.HandleImagesGenerations(eng, recorder))
	}

	// Model administration routes
	admin := router.Group("/admin", gate...)
	{
		admin.GET("/models", handlers.HandleListModels(eng))
		admin.POST("/models/load", handlers.HandleLoadModel(eng))
		admin.POST("/models/unload", handlers.HandleUnloadModel(eng))
		admin.GET("/usage", handlers.HandleUsage(recorder))
	}
}
