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
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ollamaTracer = otel.Tracer("aleutianserve.runtime.ollama")

// OllamaClient generates text and embeddings through a local Ollama daemon.
// It wraps the langchaingo Ollama bindings so the gateway speaks the same
// capability interfaces regardless of which runtime actually serves the
// model.
type OllamaClient struct {
	llm   *ollama.LLM
	model string
}

// NewOllamaClient connects to the Ollama daemon at serverURL and binds the
// client to a single model name. The daemon is not contacted here; a bad URL
// surfaces on the first generation call.
func NewOllamaClient(serverURL, model string) (*OllamaClient, error) {
	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" {
		return nil, fmt.Errorf("ollama server URL not set")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("ollama model name not set")
	}

	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	return &OllamaClient{llm: llm, model: model}, nil
}

// Generate produces a completion for prompt using the bound model.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error) {
	ctx, span := ollamaTracer.Start(ctx, "ollama.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("ollama.model", c.model),
		attribute.Int("ollama.max_tokens", opts.MaxTokens),
	)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := c.llm.GenerateContent(ctx, messages,
		llms.WithMaxTokens(opts.MaxTokens),
		llms.WithTemperature(float64(opts.Temperature)),
		llms.WithTopP(float64(opts.TopP)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ollama returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// Embed returns one embedding vector per input string.
func (c *OllamaClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	ctx, span := ollamaTracer.Start(ctx, "ollama.Embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("ollama.model", c.model),
		attribute.Int("ollama.inputs", len(inputs)),
	)

	vectors, err := c.llm.CreateEmbedding(ctx, inputs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(vectors), len(inputs))
	}
	return vectors, nil
}

var (
	_ TextGenerator = (*OllamaClient)(nil)
	_ Embedder      = (*OllamaClient)(nil)
)
