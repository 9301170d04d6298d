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
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianServe/services/gateway/engine"
	"github.com/AleutianAI/AleutianServe/services/gateway/middleware"
)

// dialChatWS spins up the handler behind a live server and dials it.
func dialChatWS(t *testing.T, eng *engine.Engine, limiter *middleware.RateLimiter,
	header http.Header) *websocket.Conn {

	t.Helper()
	router := gin.New()
	router.GET("/v1/chat/ws", HandleChatWebSocket(eng, limiter, nil))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/chat/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readUntilSentinel collects text messages until the [DONE] sentinel.
func readUntilSentinel(t *testing.T, ws *websocket.Conn) []string {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))

	var payloads []string
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		payloads = append(payloads, string(data))
		if string(data) == datatypes.StreamDoneSentinel {
			return payloads
		}
	}
}

func TestHandleChatWebSocket_ChunkProtocol(t *testing.T) {
	ws := dialChatWS(t, newHandlerEngine(t, engine.Config{}), nil, nil)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"model":"dummy-model","messages":[{"role":"user","content":"hi"}]}`)))

	payloads := readUntilSentinel(t, ws)
	require.Len(t, payloads, 4)

	var role, content, done datatypes.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(payloads[0]), &role))
	require.NoError(t, json.Unmarshal([]byte(payloads[1]), &content))
	require.NoError(t, json.Unmarshal([]byte(payloads[2]), &done))

	require.NotNil(t, role.Choices[0].Delta.Role)
	assert.Equal(t, "assistant", *role.Choices[0].Delta.Role)
	require.NotNil(t, content.Choices[0].Delta.Content)
	assert.Equal(t, "Echo: hi", *content.Choices[0].Delta.Content)
	require.NotNil(t, done.Choices[0].FinishReason)
	assert.Equal(t, "stop", *done.Choices[0].FinishReason)
}

func TestHandleChatWebSocket_MultipleTurns(t *testing.T) {
	ws := dialChatWS(t, newHandlerEngine(t, engine.Config{}), nil, nil)

	for _, prompt := range []string{"first", "second"} {
		body := `{"model":"dummy-model","messages":[{"role":"user","content":"` + prompt + `"}]}`
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(body)))

		payloads := readUntilSentinel(t, ws)
		require.Len(t, payloads, 4)

		var content datatypes.ChatCompletionChunk
		require.NoError(t, json.Unmarshal([]byte(payloads[1]), &content))
		assert.Equal(t, "Echo: "+prompt, *content.Choices[0].Delta.Content)
	}
}

func TestHandleChatWebSocket_DecodeErrorKeepsConnection(t *testing.T) {
	ws := dialChatWS(t, newHandlerEngine(t, engine.Config{}), nil, nil)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{broken`)))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var envelope datatypes.ErrorEnvelope
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, datatypes.ErrorTypeInvalidRequest, envelope.Error.Type)

	// The connection survives the bad message.
	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"model":"dummy-model","messages":[{"role":"user","content":"still here"}]}`)))
	payloads := readUntilSentinel(t, ws)
	require.Len(t, payloads, 4)
}

func TestHandleChatWebSocket_RateLimitPerMessage(t *testing.T) {
	limiter := middleware.NewRateLimiter(2)
	header := http.Header{"Authorization": []string{"Bearer tok-a"}}
	ws := dialChatWS(t, newHandlerEngine(t, engine.Config{}), limiter, header)

	request := []byte(`{"model":"dummy-model","messages":[{"role":"user","content":"hi"}]}`)

	for i := 0; i < 2; i++ {
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, request))
		require.Len(t, readUntilSentinel(t, ws), 4)
	}

	// Third message exhausts the burst.
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, request))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var envelope datatypes.ErrorEnvelope
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, datatypes.ErrorTypeRateLimited, envelope.Error.Type)
	assert.Equal(t, "Rate limit exceeded", envelope.Error.Message)
}

func TestHandleChatWebSocket_UnknownModelIsSilent(t *testing.T) {
	ws := dialChatWS(t, newHandlerEngine(t, engine.Config{}), nil, nil)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"model":"ghost","messages":[{"role":"user","content":"hi"}]}`)))

	// Routing failures emit nothing on streaming surfaces; the read times
	// out with no payload.
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "timeout") ||
		strings.Contains(err.Error(), "deadline"), err.Error())
}
