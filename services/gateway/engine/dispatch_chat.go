// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianServe/services/gateway/observability"
	"github.com/AleutianAI/AleutianServe/services/runtime"
)

// dispatchChat routes one chat envelope to a text or vision backend and
// drives either the buffered reply or the four-emission stream.
//
// Routing keys off the terminal message: image URLs present prefer the
// multimodal registry; text-only requests use the LLM registry. A request
// whose URLs match no multimodal model still runs on a same-named LLM with
// the URLs ignored. A text-only request against a vision-only name is
// rejected, not silently degraded.
func (e *Engine) dispatchChat(env *chatEnvelope) {
	req := &env.req
	model := req.Model
	streaming := env.stream != nil

	endpoint := observability.EndpointChat
	if streaming {
		endpoint = observability.EndpointChatStream
	}
	e.metrics.RecordRequest(endpoint)

	prompt, imageURLs := req.TerminalPrompt()
	opts := runtime.OptionsFromRequest(req.MaxTokens, req.Temperature, req.TopP)

	llm, hasLLM := e.registries.LLM.Lookup(model)
	vlm, hasVLM := e.registries.Multimodal.Lookup(model)

	var generate func(context.Context) (string, error)
	switch {
	case len(imageURLs) > 0 && hasVLM:
		generate = func(ctx context.Context) (string, error) {
			return vlm.GenerateFromVision(ctx, prompt, imageURLs, opts)
		}
	case hasLLM:
		generate = func(ctx context.Context) (string, error) {
			return llm.Generate(ctx, prompt, opts)
		}
	case hasVLM:
		e.failChat(env, requiresImagesError(model))
		return
	default:
		e.failChat(env, notFoundError(model))
		return
	}

	if streaming {
		e.streamChat(env, generate)
		return
	}
	e.bufferChat(env, generate)
}

// failChat reports a routing failure. Buffered callers get the error on
// their reply channel; a stream is closed with zero emissions, which the
// SSE layer forwards as an empty event stream.
func (e *Engine) failChat(env *chatEnvelope, err error) {
	if env.stream != nil {
		close(env.stream)
		return
	}
	env.reply <- chatResult{err: err}
}

// bufferChat generates the full completion and replies once. A backend
// failure degrades to an empty-content completion unless strict mode is on.
func (e *Engine) bufferChat(env *chatEnvelope, generate func(context.Context) (string, error)) {
	start := time.Now()

	// Generation outlives the HTTP request on purpose: a slow backend call
	// is not abandoned mid-inference when the client hangs up.
	content, err := generate(context.Background())
	if err != nil {
		if e.strictErrors {
			env.reply <- chatResult{err: backendError(err)}
			return
		}
		slog.Warn("Chat backend failed, degrading to empty content",
			"model", env.req.Model, "error", err)
		content = ""
	}

	env.reply <- chatResult{resp: datatypes.NewChatCompletionResponse(env.req.Model, content)}
	e.metrics.ObserveLatency(observability.EndpointChat, float64(time.Since(start).Milliseconds()))
}

// streamChat emits the fixed chunk sequence: role, content, done, then the
// [DONE] sentinel, and closes the stream. All chunks share one id and
// created timestamp. A backend failure is surfaced inline as the content
// text rather than as a transport error, since the status line has already
// been sent by the time generation runs.
func (e *Engine) streamChat(env *chatEnvelope, generate func(context.Context) (string, error)) {
	start := time.Now()
	e.metrics.StreamStarted()

	model := env.req.Model
	id := uuid.NewString()
	created := time.Now().Unix()

	if data, ok := marshalChunk(datatypes.NewRoleChunk(id, created, model)); ok {
		env.stream <- data
	}

	content, err := generate(context.Background())
	if err != nil {
		content = fmt.Sprintf("[error: %s]", err)
	}
	if data, ok := marshalChunk(datatypes.NewContentChunk(id, created, model, content)); ok {
		env.stream <- data
	}
	if data, ok := marshalChunk(datatypes.NewDoneChunk(id, created, model)); ok {
		env.stream <- data
	}
	env.stream <- datatypes.StreamDoneSentinel
	close(env.stream)

	e.metrics.StreamCompleted()
	e.metrics.ObserveLatency(observability.EndpointChatStream, float64(time.Since(start).Milliseconds()))
}

// marshalChunk serializes a chunk for the wire. Marshal failures are logged
// and the chunk skipped; the terminating sentinel still goes out so clients
// do not hang.
func marshalChunk(chunk datatypes.ChatCompletionChunk) (string, bool) {
	data, err := json.Marshal(chunk)
	if err != nil {
		slog.Error("Failed to marshal stream chunk", "chunk_id", chunk.ID, "error", err)
		return "", false
	}
	return string(data), true
}
