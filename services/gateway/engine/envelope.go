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
	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
)

// envelope is the unit of work carried by the dispatch queue. It is a
// sealed variant: exactly one of the concrete types below.
type envelope interface {
	isEnvelope()
}

// chatResult is the terminal outcome of a buffered chat envelope.
type chatResult struct {
	resp datatypes.ChatCompletionResponse
	err  error
}

// chatEnvelope carries one chat completion. Exactly one of reply and stream
// is non-nil: reply (capacity 1) for buffered mode, stream for SSE mode.
//
// Both channels are buffered so a worker send never blocks, even when the
// caller has abandoned the response. The worker closes stream after the
// terminal sentinel; reply is never closed, only sent to once.
type chatEnvelope struct {
	req    datatypes.ChatCompletionRequest
	reply  chan chatResult
	stream chan string
}

// embedResult is the terminal outcome of an embeddings envelope.
type embedResult struct {
	resp datatypes.EmbeddingsResponse
	err  error
}

// embedEnvelope carries one embeddings request.
type embedEnvelope struct {
	req   datatypes.EmbeddingsRequest
	reply chan embedResult
}

// imageResult is the terminal outcome of an image-generation envelope.
// The raw bytes are base64-encoded at the HTTP layer, not here.
type imageResult struct {
	images [][]byte
	err    error
}

// imageEnvelope carries one image-generation request.
type imageEnvelope struct {
	req   datatypes.ImagesGenerationRequest
	reply chan imageResult
}

func (*chatEnvelope) isEnvelope()  {}
func (*embedEnvelope) isEnvelope() {}
func (*imageEnvelope) isEnvelope() {}
