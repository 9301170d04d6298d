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

import (
	"encoding/json"
	"fmt"
)

// EmbeddingsInput is the embeddings "input" field: a single string or an
// array of strings on the wire, always a list in memory.
type EmbeddingsInput []string

// UnmarshalJSON normalizes a bare string to a one-element list.
func (e *EmbeddingsInput) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*e = EmbeddingsInput{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*e = EmbeddingsInput(many)
		return nil
	}
	return fmt.Errorf("input must be a string or an array of strings")
}

// MarshalJSON always emits the list form.
func (e EmbeddingsInput) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(e))
}

// EmbeddingsRequest represents a POST /v1/embeddings body.
type EmbeddingsRequest struct {
	Model string          `json:"model" validate:"required"`
	Input EmbeddingsInput `json:"input" validate:"required,min=1"`
}

// Validate checks the request against its validation tags.
func (r *EmbeddingsRequest) Validate() error {
	return apiValidate.Struct(r)
}

// EmbeddingObject wraps one vector with its position in the input batch.
type EmbeddingObject struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// EmbeddingUsage mirrors the OpenAI usage block; token counts are zero.
type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// EmbeddingsResponse is the buffered response for an embeddings request.
type EmbeddingsResponse struct {
	Object string            `json:"object"`
	Data   []EmbeddingObject `json:"data"`
	Model  string            `json:"model"`
	Usage  EmbeddingUsage    `json:"usage"`
}

// NewEmbeddingsResponse wraps vectors in input order.
func NewEmbeddingsResponse(model string, vectors [][]float32) EmbeddingsResponse {
	data := make([]EmbeddingObject, 0, len(vectors))
	for i, v := range vectors {
		data = append(data, EmbeddingObject{Object: "embedding", Index: i, Embedding: v})
	}
	return EmbeddingsResponse{Object: "list", Data: data, Model: model}
}
