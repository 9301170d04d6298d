// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
)

const defaultServerURL = "http://localhost:12300"

// gatewayBaseURL resolves the gateway address: flag, then environment,
// then the default local port.
func gatewayBaseURL() string {
	if serverFlag != "" {
		return strings.TrimSuffix(serverFlag, "/")
	}
	if url := os.Getenv("ALEUTIANSERVE_SERVER"); url != "" {
		return strings.TrimSuffix(url, "/")
	}
	return defaultServerURL
}

// gatewayAPIKey resolves the bearer token: flag, then environment. Empty
// means the gateway runs with auth disabled.
func gatewayAPIKey() string {
	if apiKeyFlag != "" {
		return apiKeyFlag
	}
	return os.Getenv("ALEUTIANSERVE_API_KEY")
}

// gatewayClient wraps the gateway's admin and health endpoints. The chat
// surface goes through the go-openai client instead, see openaiClient.
type gatewayClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newGatewayClient() *gatewayClient {
	return &gatewayClient{
		baseURL: gatewayBaseURL(),
		apiKey:  gatewayAPIKey(),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// openaiClient builds a go-openai client pointed at the gateway's /v1
// surface. The gateway speaks the OpenAI dialect, so the stock client works
// unmodified.
func openaiClient() *openai.Client {
	cfg := openai.DefaultConfig(gatewayAPIKey())
	cfg.BaseURL = gatewayBaseURL() + "/v1"
	return openai.NewClientWithConfig(cfg)
}

// Health checks GET /health.
func (g *gatewayClient) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := g.doJSON(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("gateway reported status %q", out.Status)
	}
	return nil
}

// ListModels fetches the four registry name-lists.
func (g *gatewayClient) ListModels(ctx context.Context) (datatypes.ModelsListResponse, error) {
	var out datatypes.ModelsListResponse
	err := g.doJSON(ctx, http.MethodGet, "/admin/models", nil, &out)
	return out, err
}

// LoadModel installs a backend into a registry.
func (g *gatewayClient) LoadModel(ctx context.Context, req datatypes.LoadModelRequest) error {
	return g.doJSON(ctx, http.MethodPost, "/admin/models/load", req, nil)
}

// UnloadModel removes a backend from a registry.
func (g *gatewayClient) UnloadModel(ctx context.Context, req datatypes.UnloadModelRequest) error {
	return g.doJSON(ctx, http.MethodPost, "/admin/models/unload", req, nil)
}

// doJSON runs one JSON round trip. A non-2xx status decodes the gateway's
// error envelope when present and returns its message.
func (g *gatewayClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		var envelope datatypes.ErrorEnvelope
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
			return fmt.Errorf("gateway: %s", envelope.Error.Message)
		}
		return fmt.Errorf("gateway returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
