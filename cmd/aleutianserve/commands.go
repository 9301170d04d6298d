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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverFlag string // Gateway base URL (--server, env ALEUTIANSERVE_SERVER)
	apiKeyFlag string // Bearer token (--api-key, env ALEUTIANSERVE_API_KEY)
	jsonOutput bool   // Machine-readable output for scripting

	chatModel  string
	chatPrompt string

	loadName     string
	loadKind     string
	loadProvider string
	loadPath     string

	unloadName string
	unloadKind string

	rootCmd = &cobra.Command{
		Use:   "aleutianserve",
		Short: "A cli to talk to and administer an AleutianServe gateway",
		Long: `Aleutianserve speaks to a running gateway over its OpenAI-compatible
				API: interactive chat, model administration, and health checks.`,
	}

	// --- Chat ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Starts an interactive chat session against the gateway",
		Run:   runChatCommand, // Defined in cmd_chat.go
	}

	// --- Model Administration ---
	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "Inspect and mutate the gateway model registries",
	}
	modelsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the models loaded in each registry",
		Run:   runModelsList, // Defined in cmd_models.go
	}
	modelsLoadCmd = &cobra.Command{
		Use:   "load",
		Short: "Load a model backend into a registry",
		Run:   runModelsLoad, // Defined in cmd_models.go
	}
	modelsUnloadCmd = &cobra.Command{
		Use:   "unload [model]",
		Short: "Unload a model backend from a registry",
		Run:   runModelsUnload, // Defined in cmd_models.go
	}

	// --- Health ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check gateway liveness, exiting non-zero when unreachable",
		Run:   runHealthCommand, // Defined in cmd_health.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "",
		"Gateway base URL (default http://localhost:12300, env ALEUTIANSERVE_SERVER)")
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "",
		"Bearer token for gateways with API_KEYS set (env ALEUTIANSERVE_API_KEY)")

	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatModel, "model", "dummy-model", "Model name to chat with")
	chatCmd.Flags().StringVar(&chatPrompt, "prompt", "",
		"One-shot prompt: send, print the answer, and exit (also the mode when stdout is not a TTY)")

	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsLoadCmd)
	modelsCmd.AddCommand(modelsUnloadCmd)
	modelsListCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the registries as JSON")
	modelsLoadCmd.Flags().StringVar(&loadName, "name", "", "Model name (empty opens the interactive form)")
	modelsLoadCmd.Flags().StringVar(&loadKind, "kind", "llm", "Registry kind: llm, embedding, or multimodal")
	modelsLoadCmd.Flags().StringVar(&loadProvider, "provider", "dummy", "Backend provider: dummy, llamacpp, openai, or ollama")
	modelsLoadCmd.Flags().StringVar(&loadPath, "path", "", "Provider path or URL, e.g. the llama.cpp server address")
	modelsUnloadCmd.Flags().StringVar(&unloadName, "name", "", "Model name (or pass it as the argument)")
	modelsUnloadCmd.Flags().StringVar(&unloadKind, "kind", "llm", "Registry kind: llm, embedding, multimodal, or image")

	rootCmd.AddCommand(healthCmd)
}
