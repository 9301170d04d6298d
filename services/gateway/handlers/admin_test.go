// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianServe/services/gateway/engine"
)

func adminRouter(eng *engine.Engine) *gin.Engine {
	router := gin.New()
	router.GET("/health", HealthCheck)
	router.GET("/admin/models", HandleListModels(eng))
	router.POST("/admin/models/load", HandleLoadModel(eng))
	router.POST("/admin/models/unload", HandleUnloadModel(eng))
	router.POST("/v1/embeddings", HandleEmbeddings(eng, nil))
	return router
}

func doGet(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, err := http.NewRequest("GET", path, nil)
	require.NoError(t, err)
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router := adminRouter(newHandlerEngine(t, engine.Config{}))

	w := doGet(t, router, "/health")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandleListModels_InitialRegistries(t *testing.T) {
	router := adminRouter(newHandlerEngine(t, engine.Config{}))

	w := doGet(t, router, "/admin/models")

	require.Equal(t, http.StatusOK, w.Code)
	var listing datatypes.ModelsListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))

	assert.Equal(t, []string{"dummy-model"}, listing.LLM)
	assert.Equal(t, []string{"dummy-embedding"}, listing.Embedding)
	assert.Equal(t, []string{"dummy-model"}, listing.Multimodal)
	assert.Equal(t, []string{"dummy-image"}, listing.Image)
}

func TestAdminModels_EmbeddingRoundTrip(t *testing.T) {
	router := adminRouter(newHandlerEngine(t, engine.Config{}))

	// Load a new embedding model; no provider means the dummy backend.
	w := doPost(t, router, "/admin/models/load",
		`{"model":"mini-embed","kind":"embedding"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	var listing datatypes.ModelsListResponse
	require.NoError(t, json.Unmarshal(doGet(t, router, "/admin/models").Body.Bytes(), &listing))
	assert.Contains(t, listing.Embedding, "mini-embed")

	// The loaded model serves traffic.
	w = doPost(t, router, "/v1/embeddings", `{"model":"mini-embed","input":["hi"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	// Unload removes it from the listing and from routing.
	w = doPost(t, router, "/admin/models/unload",
		`{"model":"mini-embed","kind":"embedding"}`)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, json.Unmarshal(doGet(t, router, "/admin/models").Body.Bytes(), &listing))
	assert.NotContains(t, listing.Embedding, "mini-embed")

	w = doPost(t, router, "/v1/embeddings", `{"model":"mini-embed","input":["hi"]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleLoadModel_UnknownKind(t *testing.T) {
	router := adminRouter(newHandlerEngine(t, engine.Config{}))

	w := doPost(t, router, "/admin/models/load",
		`{"model":"anything","kind":"telepathy"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	envelope := decodeErrorEnvelope(t, w)
	assert.Equal(t, datatypes.ErrorTypeInvalidRequest, envelope.Error.Type)
	assert.Equal(t, "unknown kind", envelope.Error.Message)
}

func TestHandleLoadModel_MissingFields(t *testing.T) {
	router := adminRouter(newHandlerEngine(t, engine.Config{}))

	w := doPost(t, router, "/admin/models/load", `{"model":"nameless"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, datatypes.ErrorTypeInvalidRequest, decodeErrorEnvelope(t, w).Error.Type)
}

func TestHandleUnloadModel_UnknownNameIsOK(t *testing.T) {
	router := adminRouter(newHandlerEngine(t, engine.Config{}))

	w := doPost(t, router, "/admin/models/unload",
		`{"model":"never-loaded","kind":"llm"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandleUnloadModel_UnknownKind(t *testing.T) {
	router := adminRouter(newHandlerEngine(t, engine.Config{}))

	w := doPost(t, router, "/admin/models/unload",
		`{"model":"x","kind":"telepathy"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unknown kind", decodeErrorEnvelope(t, w).Error.Message)
}
