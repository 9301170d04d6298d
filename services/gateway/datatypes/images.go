// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// Image request defaults applied by EnsureDefaults.
const (
	DefaultImageCount = 1
	DefaultImageSize  = "512x512"
)

// ImagesGenerationRequest represents a POST /v1/images/generations body.
type ImagesGenerationRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt" validate:"required"`
	N      int    `json:"n,omitempty" validate:"gte=0,lte=16"`
	Size   string `json:"size,omitempty"`
}

// Validate checks the request against its validation tags.
func (r *ImagesGenerationRequest) Validate() error {
	return apiValidate.Struct(r)
}

// EnsureDefaults fills the image count and size when the client left them
// unset.
func (r *ImagesGenerationRequest) EnsureDefaults() {
	if r.N <= 0 {
		r.N = DefaultImageCount
	}
	if r.Size == "" {
		r.Size = DefaultImageSize
	}
}

// ImageDataObject is one generated image. The gateway always fills B64JSON;
// URL and RevisedPrompt exist for clients that expect the full OpenAI shape.
type ImageDataObject struct {
	B64JSON       string `json:"b64_json,omitempty"`
	URL           string `json:"url,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ImagesGenerationResponse is the buffered response for an image request.
type ImagesGenerationResponse struct {
	Created int64             `json:"created"`
	Data    []ImageDataObject `json:"data"`
}
