// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the wire-level request and response types for
// the gateway service.
//
// This file contains the OpenAI-compatible chat completion types, including
// the streaming chunk protocol. For embeddings see embeddings.go, for image
// generation see images.go, and for the admin surface see admin.go.
package datatypes

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// apiValidate is the validator instance for all gateway datatypes.
// Initialized once in init().
var apiValidate *validator.Validate

func init() {
	apiValidate = validator.New()
}

// =============================================================================
// Chat Completion Request Types
// =============================================================================

// ChatCompletionRequest represents a POST /v1/chat/completions body.
//
// # Description
//
// Carries the model name, the conversation, and optional sampling
// parameters. The same shape is accepted over the WebSocket chat endpoint.
// Sampling fields are pointers so "absent" and "zero" stay distinguishable;
// defaults are resolved when the dispatch envelope is built, not here.
//
// # Fields
//
//   - Model: Required. Registry name of the backend to use. For remote
//     providers this doubles as the upstream model identifier.
//   - Messages: Conversation history. May be empty; prompt extraction then
//     yields an empty prompt. Only the terminal message drives generation.
//   - Stream: Optional. True selects SSE streaming; default is buffered.
//   - MaxTokens: Optional. Completion budget in tokens, default 100.
//   - Temperature: Optional. Sampling temperature, default 1.0.
//   - TopP: Optional. Nucleus sampling mass, default 1.0.
type ChatCompletionRequest struct {
	Model       string        `json:"model" validate:"required"`
	Messages    []ChatMessage `json:"messages" validate:"dive"`
	Stream      *bool         `json:"stream,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty" validate:"omitempty,gte=0"`
	Temperature *float32      `json:"temperature,omitempty" validate:"omitempty,gte=0"`
	TopP        *float32      `json:"top_p,omitempty" validate:"omitempty,gte=0"`
}

// Validate checks the request against its validation tags.
func (r *ChatCompletionRequest) Validate() error {
	return apiValidate.Struct(r)
}

// Streaming reports whether the client asked for SSE streaming.
func (r *ChatCompletionRequest) Streaming() bool {
	return r.Stream != nil && *r.Stream
}

// TerminalPrompt extracts the prompt text and image URLs from the last
// message. No messages means an empty prompt and no URLs.
func (r *ChatCompletionRequest) TerminalPrompt() (string, []string) {
	if len(r.Messages) == 0 {
		return "", nil
	}
	last := r.Messages[len(r.Messages)-1]
	return last.Content.PromptText(), last.Content.ImageURLs()
}

// ChatMessage is one turn of the conversation.
type ChatMessage struct {
	Role    string         `json:"role" validate:"required"`
	Content MessageContent `json:"content"`
}

// =============================================================================
// Message Content (string or parts array)
// =============================================================================

// Content part discriminators accepted in array-form message content.
const (
	ContentPartText     = "text"
	ContentPartImageURL = "image_url"
)

// ContentPart is one element of array-form message content.
type ContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *ImageURLPart `json:"image_url,omitempty"`
}

// ImageURLPart carries an image reference inside a content part.
type ImageURLPart struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// MessageContent models the OpenAI content field, which is either a plain
// string or an array of typed parts.
//
// # Description
//
// The two shapes are preserved through a decode/encode round trip: string
// content marshals back to a JSON string, parts content to a JSON array.
// PromptText and ImageURLs give the dispatch layer a shape-independent view.
//
// # Thread Safety
//
// Immutable after decoding; safe to share.
type MessageContent struct {
	text    string
	parts   []ContentPart
	isParts bool
}

// NewTextContent builds string-form content. Used by tests and the CLI.
func NewTextContent(text string) MessageContent {
	return MessageContent{text: text}
}

// NewPartsContent builds array-form content.
func NewPartsContent(parts []ContentPart) MessageContent {
	return MessageContent{parts: parts, isParts: true}
}

// UnmarshalJSON accepts either a JSON string or an array of content parts.
func (m *MessageContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*m = MessageContent{text: text}
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err == nil {
		*m = MessageContent{parts: parts, isParts: true}
		return nil
	}
	return fmt.Errorf("content must be a string or an array of content parts")
}

// MarshalJSON reproduces the shape the content was decoded from.
func (m MessageContent) MarshalJSON() ([]byte, error) {
	if m.isParts {
		return json.Marshal(m.parts)
	}
	return json.Marshal(m.text)
}

// PromptText returns the generation prompt: the string itself for string
// content, or the text parts concatenated in order for array content.
func (m MessageContent) PromptText() string {
	if !m.isParts {
		return m.text
	}
	var b strings.Builder
	for _, p := range m.parts {
		if p.Type == ContentPartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ImageURLs returns the image references in order. String content carries
// none.
func (m MessageContent) ImageURLs() []string {
	if !m.isParts {
		return nil
	}
	var urls []string
	for _, p := range m.parts {
		if p.Type == ContentPartImageURL && p.ImageURL != nil && p.ImageURL.URL != "" {
			urls = append(urls, p.ImageURL.URL)
		}
	}
	return urls
}

// =============================================================================
// Chat Completion Response Types
// =============================================================================

// ResponseMessage is the assistant turn inside a buffered response.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionChoice is one completion alternative. The gateway always
// returns exactly one at index 0.
type ChatCompletionChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// Usage reports token accounting. Backends here do not count tokens, so the
// fields are always zero; the object is kept for client compatibility.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is the buffered response for a chat completion.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

// NewChatCompletionResponse assembles the standard single-choice buffered
// response with a fresh ID and timestamp.
func NewChatCompletionResponse(model, content string) ChatCompletionResponse {
	return ChatCompletionResponse{
		ID:      uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChatCompletionChoice{
			{
				Index:        0,
				Message:      ResponseMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
	}
}

// =============================================================================
// Streaming Chunk Types
// =============================================================================

// Delta carries the incremental fields of a streamed chunk. Absent fields
// are omitted from the JSON, so the terminal chunk serializes as "{}".
type Delta struct {
	Role    *string `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// ChatCompletionChunkChoice pairs a delta with its finish state.
// FinishReason is null until the terminal chunk.
type ChatCompletionChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// ChatCompletionChunk is one streamed SSE payload. Every chunk of a stream
// shares the same ID and Created values.
type ChatCompletionChunk struct {
	ID      string                      `json:"id"`
	Object  string                      `json:"object"`
	Created int64                       `json:"created"`
	Model   string                      `json:"model"`
	Choices []ChatCompletionChunkChoice `json:"choices"`
}

func newChunk(id string, created int64, model string, delta Delta, finishReason *string) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []ChatCompletionChunkChoice{
			{Index: 0, Delta: delta, FinishReason: finishReason},
		},
	}
}

// NewRoleChunk opens a stream: delta carries only the assistant role.
func NewRoleChunk(id string, created int64, model string) ChatCompletionChunk {
	role := "assistant"
	return newChunk(id, created, model, Delta{Role: &role}, nil)
}

// NewContentChunk carries the generated text.
func NewContentChunk(id string, created int64, model, content string) ChatCompletionChunk {
	return newChunk(id, created, model, Delta{Content: &content}, nil)
}

// NewDoneChunk closes a stream: empty delta, finish_reason "stop".
func NewDoneChunk(id string, created int64, model string) ChatCompletionChunk {
	stop := "stop"
	return newChunk(id, created, model, Delta{}, &stop)
}

// StreamDoneSentinel is the raw payload of the final SSE frame. It is not
// JSON and must be written verbatim.
const StreamDoneSentinel = "[DONE]"
