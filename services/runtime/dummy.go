// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runtime

import (
	"context"
	"fmt"
	"math"
	"math/bits"
)

// DummyEmbeddingDim is the vector width of the built-in embedding backend.
const DummyEmbeddingDim = 384

// DummyText echoes the prompt back, truncated to MaxTokens runes. It is the
// backend behind the preinstalled "dummy-model" and the fallback for failed
// text loads. Deterministic, which the response-cache tests rely on.
type DummyText struct{}

// NewDummyText returns the echo text backend.
func NewDummyText() *DummyText { return &DummyText{} }

func (d *DummyText) Generate(_ context.Context, prompt string, opts GenerationOptions) (string, error) {
	return "Echo: " + truncateRunes(prompt, opts.MaxTokens), nil
}

// DummyVision echoes the text portion and reports how many images the
// request referenced.
type DummyVision struct{}

// NewDummyVision returns the echo vision backend.
func NewDummyVision() *DummyVision { return &DummyVision{} }

func (d *DummyVision) GenerateFromVision(_ context.Context, text string, imageURLs []string, opts GenerationOptions) (string, error) {
	return fmt.Sprintf("Echo(Vision): %s images=%d", truncateRunes(text, opts.MaxTokens), len(imageURLs)), nil
}

// DummyEmbedding produces deterministic pseudo-embeddings: an FNV-1a hash of
// the input seeds every component, and the vector is L2-normalized. Equal
// inputs always map to equal vectors.
type DummyEmbedding struct {
	dimension int
}

// NewDummyEmbedding returns an embedding backend of the given width.
func NewDummyEmbedding(dimension int) *DummyEmbedding {
	return &DummyEmbedding{dimension: dimension}
}

func (d *DummyEmbedding) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	results := make([][]float32, 0, len(inputs))
	for _, text := range inputs {
		var hash uint64 = 1469598103934665603
		for _, b := range []byte(text) {
			hash ^= uint64(b)
			hash *= 1099511628211
		}
		vec := make([]float32, d.dimension)
		for i := range vec {
			vec[i] = float32(bits.RotateLeft64(hash, i%64)%1000) / 1000.0
		}
		var sum float64
		for _, v := range vec {
			sum += float64(v) * float64(v)
		}
		if norm := float32(math.Sqrt(sum)); norm > 0 {
			for i := range vec {
				vec[i] /= norm
			}
		}
		results = append(results, vec)
	}
	return results, nil
}

// DummyImage returns placeholder byte payloads tagged with the requested
// size, one per requested image.
type DummyImage struct{}

// NewDummyImage returns the placeholder image backend.
func NewDummyImage() *DummyImage { return &DummyImage{} }

func (d *DummyImage) GenerateImages(_ context.Context, _ string, n int, size string) ([][]byte, error) {
	header := []byte("DUMMY_PNG:" + size + ":")
	images := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		payload := make([]byte, len(header))
		copy(payload, header)
		images = append(images, payload)
	}
	return images, nil
}

func truncateRunes(s string, max int) string {
	if max < 0 {
		max = 0
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var (
	_ TextGenerator   = (*DummyText)(nil)
	_ VisionGenerator = (*DummyVision)(nil)
	_ Embedder        = (*DummyEmbedding)(nil)
	_ ImageGenerator  = (*DummyImage)(nil)
)
