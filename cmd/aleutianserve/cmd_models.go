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
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
)

func runModelsList(cmd *cobra.Command, args []string) {
	client := newGatewayClient()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	models, err := client.ListModels(ctx)
	if err != nil {
		log.Fatalf("Failed to list models: %v", err)
	}

	switch {
	case jsonOutput:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(models); err != nil {
			log.Fatalf("Failed to encode models: %v", err)
		}
	case stdoutIsTTY():
		fmt.Println(renderModelsTable(models))
	default:
		fmt.Print(renderModelsPlain(models))
	}
}

func runModelsLoad(cmd *cobra.Command, args []string) {
	// No --name means interactive mode.
	if loadName == "" {
		if err := loadModelForm().Run(); err != nil {
			log.Fatalf("Load cancelled: %v", err)
		}
	}

	client := newGatewayClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req := datatypes.LoadModelRequest{
		Model:    loadName,
		Kind:     loadKind,
		Provider: loadProvider,
		Path:     loadPath,
	}
	if err := client.LoadModel(ctx, req); err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	fmt.Printf("Loaded %q into the %s registry\n", loadName, loadKind)
}

func runModelsUnload(cmd *cobra.Command, args []string) {
	name := unloadName
	if len(args) > 0 {
		name = args[0]
	}
	if name == "" {
		log.Fatalf("A model name is required: aleutianserve models unload <model> [--kind llm]")
	}

	client := newGatewayClient()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req := datatypes.UnloadModelRequest{Model: name, Kind: unloadKind}
	if err := client.UnloadModel(ctx, req); err != nil {
		log.Fatalf("Failed to unload model: %v", err)
	}
	fmt.Printf("Unloaded %q from the %s registry\n", name, unloadKind)
}

// loadModelForm collects the load parameters interactively.
func loadModelForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Model name").
				Placeholder("llama-3-8b").
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("a model name is required")
					}
					return nil
				}).
				Value(&loadName),
			huh.NewSelect[string]().
				Title("Registry kind").
				Options(huh.NewOptions("llm", "embedding", "multimodal")...).
				Value(&loadKind),
			huh.NewSelect[string]().
				Title("Provider").
				Options(huh.NewOptions("dummy", "llamacpp", "openai", "ollama")...).
				Value(&loadProvider),
			huh.NewInput().
				Title("Provider path or URL").
				Placeholder("http://localhost:8080").
				Value(&loadPath),
		),
	)
}

// renderModelsTable renders the registries as a bordered table for TTYs.
func renderModelsTable(models datatypes.ModelsListResponse) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("KIND", "MODELS")

	for _, row := range modelRows(models) {
		t.Row(row[0], row[1])
	}
	return t.String()
}

// renderModelsPlain renders one kind per line for pipes and scripts.
func renderModelsPlain(models datatypes.ModelsListResponse) string {
	var b strings.Builder
	for _, row := range modelRows(models) {
		fmt.Fprintf(&b, "%s: %s\n", row[0], row[1])
	}
	return b.String()
}

func modelRows(models datatypes.ModelsListResponse) [][2]string {
	join := func(names []string) string {
		if len(names) == 0 {
			return "(none)"
		}
		return strings.Join(names, ", ")
	}
	return [][2]string{
		{"llm", join(models.LLM)},
		{"embedding", join(models.Embedding)},
		{"multimodal", join(models.Multimodal)},
		{"image", join(models.Image)},
	}
}

func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
