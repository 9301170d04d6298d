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

	"github.com/AleutianAI/AleutianServe/services/gateway/observability"
)

// dispatchImages generates n images and replies with the raw bytes. The
// request is assumed normalized (EnsureDefaults) by the HTTP layer; the
// count and size defaults are still applied here so direct engine callers
// get the same behavior.
func (e *Engine) dispatchImages(env *imageEnvelope) {
	e.metrics.RecordRequest(observability.EndpointImages)
	req := env.req
	req.EnsureDefaults()

	generator, ok := e.registries.Image.Lookup(req.Model)
	if !ok {
		env.reply <- imageResult{err: notFoundError(req.Model)}
		return
	}

	start := time.Now()
	images, err := generator.GenerateImages(context.Background(), req.Prompt, req.N, req.Size)
	if err != nil {
		env.reply <- imageResult{err: backendError(err)}
		return
	}

	env.reply <- imageResult{images: images}
	e.metrics.ObserveLatency(observability.EndpointImages, float64(time.Since(start).Milliseconds()))
}
