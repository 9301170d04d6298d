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
	"context"
	"fmt"
	"log"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

func runChatCommand(cmd *cobra.Command, args []string) {
	prompt := chatPrompt
	if prompt == "" && len(args) > 0 {
		prompt = strings.Join(args, " ")
	}

	// One-shot when a prompt was given or output is piped somewhere.
	if prompt != "" || !stdoutIsTTY() {
		if prompt == "" {
			log.Fatalf("A prompt is required outside a terminal: aleutianserve chat --prompt \"...\"")
		}
		answer, err := oneShotChat(context.Background(), openaiClient(), chatModel, prompt)
		if err != nil {
			log.Fatalf("Chat failed: %v", err)
		}
		fmt.Println(answer)
		return
	}

	p := tea.NewProgram(newChatTUI(openaiClient(), chatModel), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Chat UI error: %v", err)
	}
}

// oneShotChat sends a single user turn and returns the answer text.
func oneShotChat(ctx context.Context, client *openai.Client, model, prompt string) (string, error) {
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("gateway returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
