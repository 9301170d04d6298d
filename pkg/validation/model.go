// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// registry keys, usage-ledger series tags, and structured log lines. Using
// these validators keeps attacker-chosen names out of query syntax and key
// delimiters (Flux injection, key collisions, log forging).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// modelNamePattern matches valid model identifiers.
// Allows: letters, digits, dots (gpt-4.1), hyphens, underscores,
// colons (llama3:8b), and slashes for org-scoped names (meta/llama-3-8b).
// Max length: 128 characters.
var modelNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:/\-]{0,127}$`)

// ValidateModelName validates a model identifier before it is admitted to a
// registry or written to the usage ledger.
//
// Valid names:
//   - 1-128 characters
//   - Letters and digits
//   - Dots (.) and hyphens (-) as in gpt-4o-mini
//   - Underscores (_) and colons (:) as in llama3:8b-instruct-q4_K_M
//   - Slashes (/) for org-scoped names like meta-llama/Meta-Llama-3-8B
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateModelName(name); err != nil {
//	    return fmt.Errorf("invalid model name: %w", err)
//	}
//	// Safe to use as a registry key and ledger tag
func ValidateModelName(name string) error {
	if name == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	if !modelNamePattern.MatchString(name) {
		return fmt.Errorf("invalid model name: %q (must be 1-128 alphanumeric chars, dots, hyphens, underscores, colons, or slashes)", name)
	}

	return nil
}

// ValidateModelNames validates multiple model identifiers.
// Returns an error listing all invalid names if any fail validation.
func ValidateModelNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateModelName(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid model names: %v", invalid)
	}
	return nil
}

// SanitizeModelName trims and validates a model identifier. Names stay
// case-sensitive; only surrounding whitespace is normalized.
//
// Use this on identifiers arriving from configuration or request bodies:
//
//	safeName, err := validation.SanitizeModelName(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeName is trimmed and validated
func SanitizeModelName(name string) (string, error) {
	normalized := strings.TrimSpace(name)
	if err := ValidateModelName(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
