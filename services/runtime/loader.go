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
	"log/slog"
	"os"
	"strings"
)

// Kind identifies the capability registry a backend is loaded for.
type Kind string

const (
	KindLLM        Kind = "llm"
	KindEmbedding  Kind = "embedding"
	KindMultimodal Kind = "multimodal"
	KindImage      Kind = "image"
)

// ParseKind normalizes a client-supplied kind string. The second return is
// false when the string names no known kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindLLM:
		return KindLLM, true
	case KindEmbedding:
		return KindEmbedding, true
	case KindMultimodal:
		return KindMultimodal, true
	case KindImage:
		return KindImage, true
	default:
		return "", false
	}
}

// Provider selects the construction strategy for a backend.
type Provider string

const (
	ProviderDummy    Provider = "dummy"
	ProviderLlamaCpp Provider = "llamacpp"
	ProviderOpenAI   Provider = "openai"
	ProviderOllama   Provider = "ollama"
)

// upstreamOpenAIKey reads the shared secret for OpenAI-compatible upstreams.
// Remote providers are keyed per process, not per model.
func upstreamOpenAIKey() string {
	return os.Getenv("UPSTREAM_OPENAI_API_KEY")
}

// LoadText builds a text-generation backend named name from provider and
// path. Loading never fails: an unknown provider, a provider without text
// support, or a constructor error all degrade to the dummy backend with a
// logged warning.
//
// The registry name doubles as the upstream model identifier for remote
// providers, so "gpt-4o-mini" loaded via the openai provider is requested
// upstream under that same name.
func LoadText(name string, provider Provider, path string) TextGenerator {
	switch provider {
	case ProviderLlamaCpp:
		client, err := NewLlamaCppClient(path)
		if err == nil {
			return client
		}
		logLoadFallback(KindLLM, name, provider, err)
	case ProviderOpenAI:
		client, err := NewUpstreamOpenAIClient(path, upstreamOpenAIKey(), name)
		if err == nil {
			return client
		}
		logLoadFallback(KindLLM, name, provider, err)
	case ProviderOllama:
		client, err := NewOllamaClient(path, name)
		if err == nil {
			return client
		}
		logLoadFallback(KindLLM, name, provider, err)
	case ProviderDummy, Provider(""):
	default:
		logUnknownProvider(KindLLM, name, provider)
	}
	return NewDummyText()
}

// LoadVision builds a vision backend. Only llamacpp and openai serve vision;
// everything else degrades to the dummy.
func LoadVision(name string, provider Provider, path string) VisionGenerator {
	switch provider {
	case ProviderLlamaCpp:
		client, err := NewLlamaCppClient(path)
		if err == nil {
			return client
		}
		logLoadFallback(KindMultimodal, name, provider, err)
	case ProviderOpenAI:
		client, err := NewUpstreamOpenAIClient(path, upstreamOpenAIKey(), name)
		if err == nil {
			return client
		}
		logLoadFallback(KindMultimodal, name, provider, err)
	case ProviderDummy, Provider(""):
	default:
		logUnknownProvider(KindMultimodal, name, provider)
	}
	return NewDummyVision()
}

// LoadEmbedder builds an embedding backend. Only openai and ollama serve
// embeddings; everything else degrades to the dummy.
func LoadEmbedder(name string, provider Provider, path string) Embedder {
	switch provider {
	case ProviderOpenAI:
		client, err := NewUpstreamOpenAIClient(path, upstreamOpenAIKey(), name)
		if err == nil {
			return client
		}
		logLoadFallback(KindEmbedding, name, provider, err)
	case ProviderOllama:
		client, err := NewOllamaClient(path, name)
		if err == nil {
			return client
		}
		logLoadFallback(KindEmbedding, name, provider, err)
	case ProviderDummy, Provider(""):
	default:
		logUnknownProvider(KindEmbedding, name, provider)
	}
	return NewDummyEmbedding(DummyEmbeddingDim)
}

// LoadImage builds an image-generation backend. Only openai serves image
// generation; everything else degrades to the dummy.
func LoadImage(name string, provider Provider, path string) ImageGenerator {
	switch provider {
	case ProviderOpenAI:
		client, err := NewUpstreamOpenAIClient(path, upstreamOpenAIKey(), name)
		if err == nil {
			return client
		}
		logLoadFallback(KindImage, name, provider, err)
	case ProviderDummy, Provider(""):
	default:
		logUnknownProvider(KindImage, name, provider)
	}
	return NewDummyImage()
}

func logLoadFallback(kind Kind, name string, provider Provider, err error) {
	slog.Warn("Backend load failed, falling back to dummy",
		"kind", string(kind),
		"model", name,
		"provider", string(provider),
		"error", err)
}

func logUnknownProvider(kind Kind, name string, provider Provider) {
	slog.Warn("Provider cannot serve this kind, falling back to dummy",
		"kind", string(kind),
		"model", name,
		"provider", string(provider))
}
