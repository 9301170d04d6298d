// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainWriter implements http.ResponseWriter without http.Flusher.
type plainWriter struct {
	header http.Header
	buf    bytes.Buffer
}

func (w *plainWriter) Header() http.Header         { return w.header }
func (w *plainWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }
func (w *plainWriter) WriteHeader(int)             {}

func TestNewSSEWriter_RequiresFlusher(t *testing.T) {
	_, err := NewSSEWriter(&plainWriter{header: http.Header{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http.Flusher")
}

func TestSSEWriter_WriteData(t *testing.T) {
	recorder := httptest.NewRecorder()
	writer, err := NewSSEWriter(recorder)
	require.NoError(t, err)

	require.NoError(t, writer.WriteData(`{"object":"chat.completion.chunk"}`))
	require.NoError(t, writer.WriteData("[DONE]"))

	assert.Equal(t,
		"data: {\"object\":\"chat.completion.chunk\"}\n\ndata: [DONE]\n\n",
		recorder.Body.String())
	assert.True(t, recorder.Flushed, "frames must be flushed immediately")
}

func TestSetSSEHeaders(t *testing.T) {
	recorder := httptest.NewRecorder()
	SetSSEHeaders(recorder)

	assert.Equal(t, "text/event-stream", recorder.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", recorder.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", recorder.Header().Get("Connection"))
	assert.Equal(t, "no", recorder.Header().Get("X-Accel-Buffering"))
}
