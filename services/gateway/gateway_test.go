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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianServe/services/gateway/config"
	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// clearGatewayEnv blanks every variable New reads so tests start from the
// zero configuration regardless of the invoking shell.
func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GATEWAY_PORT", "API_KEYS", "ENGINE_WORKERS", "RATE_LIMIT_PER_MINUTE",
		"STRICT_BACKEND_ERRORS", "LLAMA_SERVER_URL", "UPSTREAM_OPENAI_BASE_URL",
		"UPSTREAM_OPENAI_API_KEY", "UPSTREAM_OPENAI_MODEL", "OLLAMA_SERVER_URL",
		"OLLAMA_MODEL", "MODELS_MANIFEST", "USAGE_DB_PATH", "INFLUX_URL",
		"INFLUX_TOKEN", "INFLUX_ORG", "INFLUX_BUCKET", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

// newTestService constructs a service from the current environment and
// registers its teardown.
func newTestService(t *testing.T) Service {
	t.Helper()

	svc, err := New(config.Load())
	require.NoError(t, err)
	t.Cleanup(svc.(*service).cleanup)
	return svc
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func listModels(t *testing.T, router *gin.Engine) datatypes.ModelsListResponse {
	t.Helper()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/admin/models", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var out datatypes.ModelsListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// =============================================================================
// Construction Tests
// =============================================================================

// TestNew_ZeroConfigServesDummyBackends verifies the gateway boots with no
// environment at all and answers a full chat round trip.
func TestNew_ZeroConfigServesDummyBackends(t *testing.T) {
	clearGatewayEnv(t)
	svc := newTestService(t)
	router := svc.Router()
	require.NotNil(t, router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	body := `{"model":"dummy-model","messages":[{"role":"user","content":"ping"}]}`
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp datatypes.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Echo: ping", resp.Choices[0].Message.Content)
}

// TestNew_SeedsLlamaRegistries verifies LLAMA_SERVER_URL installs the
// llama-cpp backend for text and vision.
func TestNew_SeedsLlamaRegistries(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("LLAMA_SERVER_URL", "http://localhost:8080")

	svc := newTestService(t)
	models := listModels(t, svc.Router())

	assert.Contains(t, models.LLM, "llama-cpp")
	assert.Contains(t, models.Multimodal, "llama-cpp")
	assert.NotContains(t, models.Embedding, "llama-cpp")
}

// TestNew_SeedsUpstreamOpenAI verifies the upstream model name lands in all
// four registries.
func TestNew_SeedsUpstreamOpenAI(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("UPSTREAM_OPENAI_BASE_URL", "http://localhost:9999")
	t.Setenv("UPSTREAM_OPENAI_MODEL", "gpt-4o-mini")

	svc := newTestService(t)
	models := listModels(t, svc.Router())

	assert.Contains(t, models.LLM, "gpt-4o-mini")
	assert.Contains(t, models.Multimodal, "gpt-4o-mini")
	assert.Contains(t, models.Embedding, "gpt-4o-mini")
	assert.Contains(t, models.Image, "gpt-4o-mini")
}

// TestNew_SeedsOllama verifies OLLAMA_SERVER_URL plus OLLAMA_MODEL seeds
// text and embedding entries only.
func TestNew_SeedsOllama(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("OLLAMA_SERVER_URL", "http://localhost:11434")
	t.Setenv("OLLAMA_MODEL", "llama3")

	svc := newTestService(t)
	models := listModels(t, svc.Router())

	assert.Contains(t, models.LLM, "llama3")
	assert.Contains(t, models.Embedding, "llama3")
	assert.NotContains(t, models.Multimodal, "llama3")
	assert.NotContains(t, models.Image, "llama3")
}

// TestNew_SeedsSkippedWithoutModelName verifies a partial upstream config
// (URL but no model) seeds nothing.
func TestNew_SeedsSkippedWithoutModelName(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("UPSTREAM_OPENAI_BASE_URL", "http://localhost:9999")
	t.Setenv("OLLAMA_SERVER_URL", "http://localhost:11434")

	svc := newTestService(t)
	models := listModels(t, svc.Router())

	assert.Equal(t, []string{"dummy-model"}, models.LLM)
	assert.Equal(t, []string{"dummy-embedding"}, models.Embedding)
}

// TestNew_MissingManifestIsNonFatal verifies a dangling MODELS_MANIFEST path
// only disables hot-reload.
func TestNew_MissingManifestIsNonFatal(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("MODELS_MANIFEST", filepath.Join(t.TempDir(), "absent.yaml"))

	svc := newTestService(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	svc.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestNew_ManifestSeedsRegistries verifies a manifest present at boot is
// applied before the router starts answering.
func TestNew_ManifestSeedsRegistries(t *testing.T) {
	clearGatewayEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	manifestBody := "models:\n  - name: manifest-llm\n    kind: llm\n    provider: dummy\n"
	writeFile(t, path, manifestBody)
	t.Setenv("MODELS_MANIFEST", path)

	svc := newTestService(t)
	models := listModels(t, svc.Router())

	assert.Contains(t, models.LLM, "manifest-llm")
}

// TestNew_AuthAppliesToWiredRouter verifies API_KEYS from the environment
// gates the assembled router.
func TestNew_AuthAppliesToWiredRouter(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("API_KEYS", "tok-live")

	svc := newTestService(t)
	router := svc.Router()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/admin/models", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/admin/models", nil)
	req.Header.Set("Authorization", "Bearer tok-live")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
