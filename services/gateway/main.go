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
	"log"
	"log/slog"
	"os"

	"github.com/awnumar/memguard"

	"github.com/AleutianAI/AleutianServe/services/gateway/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Wipe enclave-backed key material on SIGINT/SIGTERM and on exit.
	memguard.CatchInterrupt()
	defer memguard.Purge()

	cfg := config.Load()

	svc, err := New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize the gateway: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
