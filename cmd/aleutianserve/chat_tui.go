// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements the interactive chat TUI using bubbletea. The model
// keeps the full conversation and replays it to the gateway on every turn,
// so the stateless gateway still sees multi-turn context.
//
// # Thread Safety
//
// TUI state lives inside the bubbletea event loop. Do not touch it from
// other goroutines; the request command communicates back via messages.

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sashabaranov/go-openai"
)

// =============================================================================
// Messages
// =============================================================================

// chatReplyMsg carries one completed assistant turn.
type chatReplyMsg struct {
	content string
}

// chatErrMsg carries a failed turn. The conversation continues; the error
// renders inline in the transcript.
type chatErrMsg struct {
	err error
}

// =============================================================================
// Model
// =============================================================================

// chatEntry is one rendered line-group of the transcript.
type chatEntry struct {
	speaker string
	content string
	isError bool
}

// chatTUI is the bubbletea model for the interactive chat session.
type chatTUI struct {
	client *openai.Client
	model  string

	// Conversation replayed to the gateway each turn.
	history []openai.ChatCompletionMessage
	entries []chatEntry

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	waiting bool
	ready   bool
	width   int
	height  int
}

func newChatTUI(client *openai.Client, model string) chatTUI {
	ta := textarea.New()
	ta.Placeholder = "Ask something"
	ta.CharLimit = 8192
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return chatTUI{
		client:   client,
		model:    model,
		textarea: ta,
		spinner:  sp,
	}
}

// Init implements tea.Model.
func (m chatTUI) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model.
func (m chatTUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 2
		footerHeight := m.textarea.Height() + 2
		viewportHeight := m.height - headerHeight - footerHeight

		if !m.ready {
			m.viewport = viewport.New(m.width, viewportHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		m.textarea.SetWidth(m.width)
		m.refreshTranscript()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			if m.waiting {
				return m, nil
			}
			prompt := strings.TrimSpace(m.textarea.Value())
			if prompt == "" {
				return m, nil
			}
			m.history = append(m.history, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			})
			m.entries = append(m.entries, chatEntry{speaker: "you", content: prompt})
			m.textarea.Reset()
			m.waiting = true
			m.refreshTranscript()
			return m, tea.Batch(m.spinner.Tick, m.requestTurn())
		}

	case chatReplyMsg:
		m.waiting = false
		m.history = append(m.history, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: msg.content,
		})
		m.entries = append(m.entries, chatEntry{speaker: m.model, content: msg.content})
		m.refreshTranscript()
		return m, nil

	case chatErrMsg:
		m.waiting = false
		m.entries = append(m.entries, chatEntry{
			speaker: "error",
			content: msg.err.Error(),
			isError: true,
		})
		m.refreshTranscript()
		return m, nil

	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var taCmd, vpCmd tea.Cmd
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(taCmd, vpCmd)
}

// View implements tea.Model.
func (m chatTUI) View() string {
	if !m.ready {
		return "Loading...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("aleutianserve chat") + " " + modelStyle.Render(m.model))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.waiting {
		b.WriteString(m.spinner.View() + statusStyle.Render(" waiting for "+m.model))
	} else {
		b.WriteString(m.textarea.View())
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter to send, ctrl+c to quit"))

	return b.String()
}

// =============================================================================
// Commands
// =============================================================================

// requestTurn sends the conversation so far and reports the reply as a
// message. The snapshot keeps the command isolated from later model state.
func (m chatTUI) requestTurn() tea.Cmd {
	client := m.client
	model := m.model
	msgs := make([]openai.ChatCompletionMessage, len(m.history))
	copy(msgs, m.history)

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    model,
			Messages: msgs,
		})
		if err != nil {
			return chatErrMsg{err: err}
		}
		if len(resp.Choices) == 0 {
			return chatErrMsg{err: fmt.Errorf("gateway returned no choices")}
		}
		return chatReplyMsg{content: resp.Choices[0].Message.Content}
	}
}

// =============================================================================
// Rendering
// =============================================================================

func (m *chatTUI) refreshTranscript() {
	if !m.ready {
		return
	}

	wrap := lipgloss.NewStyle().Width(m.viewport.Width)

	var b strings.Builder
	for _, entry := range m.entries {
		label := speakerStyle
		if entry.isError {
			label = errorStyle
		} else if entry.speaker == "you" {
			label = userStyle
		}
		b.WriteString(label.Render(entry.speaker + ":"))
		b.WriteString("\n")
		b.WriteString(wrap.Render(entry.content))
		b.WriteString("\n\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// =============================================================================
// Styles
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	modelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	speakerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("75"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))
)
