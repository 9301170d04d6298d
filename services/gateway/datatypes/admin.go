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

// LoadModelRequest asks the gateway to install a backend into a registry.
// Provider and Path are optional; anything unusable degrades to the dummy
// backend for the kind rather than failing the load.
type LoadModelRequest struct {
	Model    string `json:"model" validate:"required"`
	Kind     string `json:"kind" validate:"required"`
	Provider string `json:"provider,omitempty"`
	Path     string `json:"path,omitempty"`
}

// Validate checks the request against its validation tags.
func (r *LoadModelRequest) Validate() error {
	return apiValidate.Struct(r)
}

// UnloadModelRequest removes a backend from a registry.
type UnloadModelRequest struct {
	Model string `json:"model" validate:"required"`
	Kind  string `json:"kind" validate:"required"`
}

// Validate checks the request against its validation tags.
func (r *UnloadModelRequest) Validate() error {
	return apiValidate.Struct(r)
}

// ModelsListResponse is the GET /admin/models body: the four registry
// name-lists, each sorted.
type ModelsListResponse struct {
	LLM        []string `json:"llm"`
	Embedding  []string `json:"embedding"`
	Multimodal []string `json:"multimodal"`
	Image      []string `json:"image"`
}
