// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runtime defines the capability contracts implemented by model
// backends and the providers that construct them. A single loaded backend
// may implement more than one capability; the dispatch layer never looks
// past these interfaces.
package runtime

import "context"

// Default sampling values applied when a request leaves a field unset.
const (
	DefaultMaxTokens   = 100
	DefaultTemperature = float32(1.0)
	DefaultTopP        = float32(1.0)
)

// GenerationOptions carries the sampling parameters for one generation call.
// All fields are concrete; defaulting happens before an envelope is built.
type GenerationOptions struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// DefaultGenerationOptions returns the options used when a request sets
// nothing at all.
func DefaultGenerationOptions() GenerationOptions {
	return GenerationOptions{
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
	}
}

// OptionsFromRequest resolves optional request fields into concrete options.
func OptionsFromRequest(maxTokens *int, temperature, topP *float32) GenerationOptions {
	opts := GenerationOptions{
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
	}
	if maxTokens != nil && *maxTokens > 0 {
		opts.MaxTokens = *maxTokens
	}
	if temperature != nil {
		opts.Temperature = *temperature
	}
	if topP != nil {
		opts.TopP = *topP
	}
	return opts
}

// TextGenerator produces text from a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error)
}

// VisionGenerator produces text from a prompt plus referenced images.
type VisionGenerator interface {
	GenerateFromVision(ctx context.Context, text string, imageURLs []string, opts GenerationOptions) (string, error)
}

// Embedder maps input strings to fixed-dimension vectors. The output slice
// is the same length as the input slice and preserves its order.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// ImageGenerator renders n images for a prompt. The output slice has
// exactly n elements.
type ImageGenerator interface {
	GenerateImages(ctx context.Context, prompt string, n int, size string) ([][]byte, error)
}
