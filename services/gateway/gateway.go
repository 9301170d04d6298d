// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianServe/pkg/validation"
	"github.com/AleutianAI/AleutianServe/services/gateway/config"
	"github.com/AleutianAI/AleutianServe/services/gateway/engine"
	"github.com/AleutianAI/AleutianServe/services/gateway/manifest"
	"github.com/AleutianAI/AleutianServe/services/gateway/middleware"
	"github.com/AleutianAI/AleutianServe/services/gateway/observability"
	"github.com/AleutianAI/AleutianServe/services/gateway/routes"
	"github.com/AleutianAI/AleutianServe/services/gateway/usage"
	"github.com/AleutianAI/AleutianServe/services/runtime"
)

// tracingServiceName is the service.name resource attribute on exported spans
// and the otelgin middleware name.
const tracingServiceName = "aleutianserve-gateway"

// =============================================================================
// Service Interface
// =============================================================================

// Service is the running gateway.
//
// # Description
//
// A Service owns every long-lived component: the dispatch engine, the
// usage recorder, the optional manifest watcher, and the HTTP router.
// Construction wires them together; Run serves until the listener fails
// and then tears everything down.
type Service interface {
	// Run starts the HTTP server and blocks until it stops.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

type service struct {
	config   *config.Config
	engine   *engine.Engine
	limiter  *middleware.RateLimiter
	recorder *usage.Recorder
	watcher  *manifest.Watcher
	router   *gin.Engine

	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New builds a gateway service from cfg.
//
// # Description
//
// Initializes metrics and tracing, starts the dispatch engine, seeds the
// model registries from the configured upstreams, opens the usage
// recorder, optionally starts the manifest watcher, and assembles the
// router. Optional components degrade instead of failing: a broken
// tracing exporter, usage ledger, or manifest file each log a warning
// and leave the gateway running without that feature.
//
// # Inputs
//
//   - cfg: Resolved configuration from config.Load.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil only for defects no deployment should boot with.
//
// # Thread Safety
//
// Call once from main before serving traffic.
func New(cfg *config.Config) (Service, error) {
	s := &service{config: cfg}

	// InitMetrics panics on duplicate registration, so respect an
	// instance installed by an earlier construction.
	if observability.DefaultMetrics == nil {
		observability.InitMetrics()
	}

	cleanup, err := observability.InitTracing(tracingServiceName, cfg.OTLPEndpoint)
	if err != nil {
		slog.Warn("Tracing setup failed, continuing without exporter", "error", err)
	}
	s.tracerCleanup = cleanup

	s.engine = engine.New(engine.Config{
		Workers:             cfg.EngineWorkers,
		StrictBackendErrors: cfg.StrictBackendErrors,
		Metrics:             observability.DefaultMetrics,
	})
	s.engine.Start()

	s.seedRegistries()

	s.recorder, err = usage.NewRecorder(usage.Options{
		DBPath:       cfg.UsageDBPath,
		InfluxURL:    cfg.InfluxURL,
		InfluxToken:  cfg.InfluxToken,
		InfluxOrg:    cfg.InfluxOrg,
		InfluxBucket: cfg.InfluxBucket,
	})
	if err != nil {
		slog.Warn("Usage ledger unavailable, falling back to in-memory only",
			"path", cfg.UsageDBPath, "error", err)
		s.recorder, _ = usage.NewRecorder(usage.Options{})
	}

	s.limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute)

	if cfg.ModelsManifest != "" {
		s.watcher = manifest.New(cfg.ModelsManifest, s.engine, manifest.DefaultDebounce)
		if err := s.watcher.Start(); err != nil {
			slog.Warn("Manifest watcher setup failed, hot-reload disabled",
				"path", cfg.ModelsManifest, "error", err)
			s.watcher = nil
		}
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
//
// # Description
//
// Serves on the configured port. Cleanup is automatic on return: the
// manifest watcher stops, the engine drains, the recorder closes, and
// the trace exporter flushes.
func (s *service) Run() error {
	defer s.cleanup()

	addr := ":" + s.config.Port
	slog.Info("Starting gateway server", "port", s.config.Port,
		"workers", s.config.EngineWorkers, "auth", s.config.AuthEnabled())

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// seedRegistries installs backends for every upstream named in the
// environment. Seeds never fail the boot: loaders degrade to the dummy
// backend on their own, and absent variables simply skip the seed.
func (s *service) seedRegistries() {
	cfg := s.config

	if cfg.LlamaServerURL != "" {
		s.seed("llm", "llama-cpp", "llamacpp", cfg.LlamaServerURL)
		s.seed("multimodal", "llama-cpp", "llamacpp", cfg.LlamaServerURL)
	}

	if cfg.UpstreamOpenAIBaseURL != "" && cfg.UpstreamOpenAIModel != "" {
		name := cfg.UpstreamOpenAIModel
		s.seed("llm", name, "openai", cfg.UpstreamOpenAIBaseURL)
		s.seed("multimodal", name, "openai", cfg.UpstreamOpenAIBaseURL)
		s.seed("embedding", name, "openai", cfg.UpstreamOpenAIBaseURL)
		// Image backends have no admin load path; the seed installs
		// directly, so it validates the name itself.
		if safe, err := validation.SanitizeModelName(name); err != nil {
			slog.Warn("Registry seed skipped", "kind", "image", "model", name, "error", err)
		} else {
			s.engine.Registries().Image.Insert(safe,
				runtime.LoadImage(safe, runtime.ProviderOpenAI, cfg.UpstreamOpenAIBaseURL))
			slog.Info("Model loaded", "kind", "image", "model", safe, "provider", "openai")
		}
	}

	if cfg.OllamaServerURL != "" && cfg.OllamaModel != "" {
		s.seed("llm", cfg.OllamaModel, "ollama", cfg.OllamaServerURL)
		s.seed("embedding", cfg.OllamaModel, "ollama", cfg.OllamaServerURL)
	}
}

func (s *service) seed(kind, name, provider, path string) {
	if err := s.engine.LoadModel(kind, name, provider, path); err != nil {
		slog.Warn("Registry seed skipped", "kind", kind, "model", name, "error", err)
	}
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware(tracingServiceName))

	routes.SetupRoutes(s.router, s.config, s.engine, s.limiter, s.recorder)
}

// cleanup releases all resources held by the service.
//
// # Description
//
// Called when Run() exits. Order matters: the watcher stops mutating
// registries first, then the engine drains in-flight work, then the
// recorder flushes, then the trace exporter shuts down.
func (s *service) cleanup() {
	if s.watcher != nil {
		s.watcher.Stop()
	}

	if s.engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.engine.Shutdown(ctx); err != nil {
			slog.Warn("Engine shutdown error", "error", err)
		}
		cancel()
	}

	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			slog.Warn("Usage recorder close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}

	slog.Info("Gateway shutdown complete")
}
