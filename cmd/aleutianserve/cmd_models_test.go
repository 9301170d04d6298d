// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
)

func TestRenderModelsPlain(t *testing.T) {
	models := datatypes.ModelsListResponse{
		LLM:        []string{"dummy-model", "llama-cpp"},
		Embedding:  []string{"dummy-embedding"},
		Multimodal: []string{"dummy-model"},
		Image:      nil,
	}

	got := renderModelsPlain(models)
	want := "llm: dummy-model, llama-cpp\n" +
		"embedding: dummy-embedding\n" +
		"multimodal: dummy-model\n" +
		"image: (none)\n"
	if got != want {
		t.Errorf("renderModelsPlain =\n%q\nwant\n%q", got, want)
	}
}

func TestRenderModelsTable_ContainsAllKinds(t *testing.T) {
	models := datatypes.ModelsListResponse{
		LLM:        []string{"dummy-model"},
		Embedding:  []string{"dummy-embedding"},
		Multimodal: []string{"dummy-model"},
		Image:      []string{"dummy-image"},
	}

	got := renderModelsTable(models)
	for _, want := range []string{"KIND", "MODELS", "llm", "embedding", "multimodal", "image", "dummy-embedding"} {
		if !strings.Contains(got, want) {
			t.Errorf("Table output missing %q:\n%s", want, got)
		}
	}
}

func TestModelRows_Order(t *testing.T) {
	rows := modelRows(datatypes.ModelsListResponse{})

	kinds := make([]string, 0, len(rows))
	for _, row := range rows {
		kinds = append(kinds, row[0])
		if row[1] != "(none)" {
			t.Errorf("Empty registry %s rendered as %q, want (none)", row[0], row[1])
		}
	}
	if strings.Join(kinds, ",") != "llm,embedding,multimodal,image" {
		t.Errorf("Unexpected kind order: %v", kinds)
	}
}
