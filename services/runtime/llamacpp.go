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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var llamaTracer = otel.Tracer("aleutianserve.runtime.llamacpp")

// LlamaCppClient talks to a llama.cpp server over HTTP. It implements both
// the text and vision capabilities; servers without a multimodal projector
// still accept the vision path because the image references are folded into
// the prompt.
type LlamaCppClient struct {
	httpClient *http.Client
	baseURL    string
}

type llamaCppPayload struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type llamaCppResponse struct {
	Content string `json:"content"`
}

// NewLlamaCppClient builds a client for the server at baseURL.
func NewLlamaCppClient(baseURL string) (*LlamaCppClient, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("llama.cpp server URL not set")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("llama.cpp server URL %q must include a scheme", baseURL)
	}
	return &LlamaCppClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Generate implements the TextGenerator interface.
func (l *LlamaCppClient) Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error) {
	ctx, span := llamaTracer.Start(ctx, "llamacpp.generate")
	defer span.End()
	span.SetAttributes(attribute.Int("gen.max_tokens", opts.MaxTokens))

	payload := llamaCppPayload{
		Prompt:      prompt,
		NPredict:    opts.MaxTokens,
		Temperature: &opts.Temperature,
		TopP:        &opts.TopP,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal the llama.cpp payload: %w", err)
	}

	completionURL := l.baseURL + "/completion"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, completionURL, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to build the llama.cpp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Calling llama.cpp completion", "url", completionURL)
	resp, err := l.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to reach the llama.cpp server: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read the llama.cpp response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return "", fmt.Errorf("llama.cpp server returned %s", resp.Status)
	}
	var parsed llamaCppResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse the llama.cpp response: %w", err)
	}
	return parsed.Content, nil
}

// GenerateFromVision implements the VisionGenerator interface. The image
// count is prefixed onto the prompt; decoding image bytes is the server's
// concern when a projector is configured.
func (l *LlamaCppClient) GenerateFromVision(ctx context.Context, text string, imageURLs []string, opts GenerationOptions) (string, error) {
	prompt := fmt.Sprintf("[images: %d] %s", len(imageURLs), text)
	return l.Generate(ctx, prompt, opts)
}

var (
	_ TextGenerator   = (*LlamaCppClient)(nil)
	_ VisionGenerator = (*LlamaCppClient)(nil)
)
