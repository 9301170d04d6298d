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
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// UpstreamOpenAIClient proxies generation to a remote OpenAI-compatible
// server (OpenAI itself, vLLM, llama.cpp in OpenAI mode, ...). The registry
// name under which it is installed is also the upstream model identifier.
type UpstreamOpenAIClient struct {
	client *openai.Client
	model  string
}

// NewUpstreamOpenAIClient builds a client for the upstream at baseURL.
// The "/v1" suffix is appended when missing, matching the upstream client's
// path expectations. apiKey may be empty for unauthenticated upstreams.
func NewUpstreamOpenAIClient(baseURL, apiKey, model string) (*UpstreamOpenAIClient, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("upstream base URL not set")
	}
	if model == "" {
		return nil, fmt.Errorf("upstream model name not set")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	slog.Info("Initializing upstream OpenAI-compatible client", "base_url", baseURL, "model", model)
	return &UpstreamOpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Generate implements the TextGenerator interface.
func (u *UpstreamOpenAIClient) Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: u.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxCompletionTokens: opts.MaxTokens,
		Temperature:         opts.Temperature,
		TopP:                opts.TopP,
	}
	resp, err := u.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("upstream chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("upstream returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateFromVision implements the VisionGenerator interface using the
// multi-content message format.
func (u *UpstreamOpenAIClient) GenerateFromVision(ctx context.Context, text string, imageURLs []string, opts GenerationOptions) (string, error) {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: text},
	}
	for _, url := range imageURLs {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
		})
	}
	req := openai.ChatCompletionRequest{
		Model: u.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		MaxCompletionTokens: opts.MaxTokens,
		Temperature:         opts.Temperature,
		TopP:                opts.TopP,
	}
	resp, err := u.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("upstream vision completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("upstream returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed implements the Embedder interface.
func (u *UpstreamOpenAIClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := u.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(u.model),
	})
	if err != nil {
		return nil, fmt.Errorf("upstream embeddings failed: %w", err)
	}
	vectors := make([][]float32, len(resp.Data))
	for i, datum := range resp.Data {
		vectors[i] = datum.Embedding
	}
	return vectors, nil
}

// GenerateImages implements the ImageGenerator interface. The upstream is
// asked for base64 payloads, which are decoded back to raw bytes to satisfy
// the capability contract.
func (u *UpstreamOpenAIClient) GenerateImages(ctx context.Context, prompt string, n int, size string) ([][]byte, error) {
	resp, err := u.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          u.model,
		N:              n,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("upstream image generation failed: %w", err)
	}
	images := make([][]byte, 0, len(resp.Data))
	for _, datum := range resp.Data {
		if datum.B64JSON == "" {
			return nil, fmt.Errorf("upstream returned no image payload")
		}
		raw, err := base64.StdEncoding.DecodeString(datum.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("upstream returned malformed image payload: %w", err)
		}
		images = append(images, raw)
	}
	return images, nil
}

var (
	_ TextGenerator   = (*UpstreamOpenAIClient)(nil)
	_ VisionGenerator = (*UpstreamOpenAIClient)(nil)
	_ Embedder        = (*UpstreamOpenAIClient)(nil)
	_ ImageGenerator  = (*UpstreamOpenAIClient)(nil)
)
