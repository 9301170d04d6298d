// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config assembles the gateway's runtime configuration from the
// environment. Every variable is optional; the zero configuration serves
// dummy backends with auth disabled on port 12300.
package config

import (
	"crypto/subtle"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/awnumar/memguard"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultPort               = "12300"
	DefaultRateLimitPerMinute = 60
	DefaultWorkerFloor        = 4
)

// Config is the resolved gateway configuration.
//
// # Description
//
// Built once at startup by Load and treated as read-only afterwards. The
// API key set never lives in plain reachable memory: it is sealed into a
// memguard enclave at load time and only opened inside VerifyAPIKey, where
// the unsealed buffer is destroyed before returning.
//
// # Thread Safety
//
// Safe for concurrent use after Load.
type Config struct {
	// Port is the listen port for the HTTP server (GATEWAY_PORT).
	Port string
	// EngineWorkers bounds concurrent backend execution (ENGINE_WORKERS).
	EngineWorkers int
	// RateLimitPerMinute is the per-token request quota (RATE_LIMIT_PER_MINUTE).
	RateLimitPerMinute int
	// StrictBackendErrors promotes buffered backend failures from
	// empty-content 200 responses to 502 (STRICT_BACKEND_ERRORS).
	StrictBackendErrors bool

	// Provider seeds. Absence disables the seed, never the gateway.
	LlamaServerURL        string
	UpstreamOpenAIBaseURL string
	UpstreamOpenAIModel   string
	OllamaServerURL       string
	OllamaModel           string

	// ModelsManifest optionally names a YAML manifest of models to load
	// and watch (MODELS_MANIFEST).
	ModelsManifest string

	// Usage sinks. UsageDBPath enables BadgerDB persistence; the four
	// Influx values together enable InfluxDB export.
	UsageDBPath  string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// OTLPEndpoint enables trace export when set (OTEL_EXPORTER_OTLP_ENDPOINT).
	OTLPEndpoint string

	apiKeys  *memguard.Enclave
	keyCount int
}

// Load reads the environment and returns the resolved configuration.
func Load() *Config {
	cfg := &Config{
		Port:                  envOr("GATEWAY_PORT", DefaultPort),
		EngineWorkers:         envWorkers(),
		RateLimitPerMinute:    envInt("RATE_LIMIT_PER_MINUTE", DefaultRateLimitPerMinute),
		StrictBackendErrors:   envBool("STRICT_BACKEND_ERRORS"),
		LlamaServerURL:        os.Getenv("LLAMA_SERVER_URL"),
		UpstreamOpenAIBaseURL: os.Getenv("UPSTREAM_OPENAI_BASE_URL"),
		UpstreamOpenAIModel:   os.Getenv("UPSTREAM_OPENAI_MODEL"),
		OllamaServerURL:       os.Getenv("OLLAMA_SERVER_URL"),
		OllamaModel:           os.Getenv("OLLAMA_MODEL"),
		ModelsManifest:        os.Getenv("MODELS_MANIFEST"),
		UsageDBPath:           os.Getenv("USAGE_DB_PATH"),
		InfluxURL:             os.Getenv("INFLUX_URL"),
		InfluxToken:           os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:             os.Getenv("INFLUX_ORG"),
		InfluxBucket:          os.Getenv("INFLUX_BUCKET"),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	cfg.sealAPIKeys(os.Getenv("API_KEYS"))

	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	return cfg
}

// sealAPIKeys parses the comma-separated key list and moves it into an
// enclave. Blank entries are dropped; an empty result disables auth.
func (c *Config) sealAPIKeys(raw string) {
	keys := make([]string, 0, 4)
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	c.keyCount = len(keys)
	if len(keys) == 0 {
		return
	}
	// NewEnclave wipes the source buffer.
	c.apiKeys = memguard.NewEnclave([]byte(strings.Join(keys, ",")))
	slog.Info("API key auth enabled", "keys", c.keyCount)
}

// AuthEnabled reports whether any API key is configured.
func (c *Config) AuthEnabled() bool {
	return c.apiKeys != nil
}

// KeyCount returns how many API keys were configured. Intended for logging.
func (c *Config) KeyCount() int {
	return c.keyCount
}

// VerifyAPIKey reports whether token is one of the configured keys.
//
// # Description
//
// Opens the enclave, compares token against every key in constant time,
// and destroys the unsealed buffer before returning. Every configured key
// is compared on every call so timing does not reveal which key prefixes
// exist.
//
// # Inputs
//
//   - token: The bearer token presented by the client.
//
// # Outputs
//
//   - bool: True when auth is disabled or token matches a configured key.
func (c *Config) VerifyAPIKey(token string) bool {
	if c.apiKeys == nil {
		return true
	}
	if token == "" {
		return false
	}
	buf, err := c.apiKeys.Open()
	if err != nil {
		slog.Error("Failed to open API key enclave", "error", err)
		return false
	}
	defer buf.Destroy()

	match := 0
	for _, key := range strings.Split(buf.String(), ",") {
		match |= subtle.ConstantTimeCompare([]byte(key), []byte(token))
	}
	return match == 1
}

// InfluxEnabled reports whether all four Influx settings are present.
func (c *Config) InfluxEnabled() bool {
	return c.InfluxURL != "" && c.InfluxToken != "" && c.InfluxOrg != "" && c.InfluxBucket != ""
}

// =============================================================================
// Environment Helpers
// =============================================================================

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-integer environment value", "key", key, "value", v)
		return fallback
	}
	return n
}

func envBool(key string) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return v == "true" || v == "1" || v == "yes"
}

// envWorkers resolves ENGINE_WORKERS: explicit positive value, else host
// parallelism, else 4.
func envWorkers() int {
	if n := envInt("ENGINE_WORKERS", 0); n > 0 {
		return n
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return DefaultWorkerFloor
}
