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
	"time"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianServe/services/gateway/observability"
)

// dispatchEmbeddings embeds the full input batch with a single backend call
// and replies with index-aligned vectors.
func (e *Engine) dispatchEmbeddings(env *embedEnvelope) {
	e.metrics.RecordRequest(observability.EndpointEmbeddings)
	model := env.req.Model

	embedder, ok := e.registries.Embedding.Lookup(model)
	if !ok {
		env.reply <- embedResult{err: notFoundError(model)}
		return
	}

	start := time.Now()
	vectors, err := embedder.Embed(context.Background(), []string(env.req.Input))
	if err != nil {
		env.reply <- embedResult{err: backendError(err)}
		return
	}

	env.reply <- embedResult{resp: datatypes.NewEmbeddingsResponse(model, vectors)}
	e.metrics.ObserveLatency(observability.EndpointEmbeddings, float64(time.Since(start).Milliseconds()))
}
