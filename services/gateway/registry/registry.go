// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry holds the four capability registries the dispatch engine
// routes against. Registries are read on every request and mutated only by
// the admin surface and the manifest watcher, so they are optimized for the
// read path.
package registry

import (
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianServe/services/runtime"
)

// Registry is a concurrent name→handle map for one capability.
//
// # Description
//
// Lookups take the read lock and return the handle by value; callers keep
// using a handle they already hold even after the name is removed, which
// gives in-flight requests shared-ownership semantics for free.
//
// # Thread Safety
//
// Safe for concurrent use.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// Lookup returns the handle registered under name.
//
// # Outputs
//
//   - T: The handle, or the zero value when absent.
//   - bool: Whether name was present.
func (r *Registry[T]) Lookup(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.entries[name]
	return handle, ok
}

// Insert registers handle under name, replacing any previous entry.
func (r *Registry[T]) Insert(name string, handle T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = handle
}

// Remove deletes the entry for name. Removing an absent name is a no-op.
func (r *Registry[T]) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Names returns a sorted point-in-time snapshot of the registered names.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len reports how many entries are registered.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Set bundles the four capability registries the engine dispatches against.
// A backend that implements several capabilities is installed into each
// relevant registry under the same name; the Set does not deduplicate.
type Set struct {
	LLM        *Registry[runtime.TextGenerator]
	Multimodal *Registry[runtime.VisionGenerator]
	Embedding  *Registry[runtime.Embedder]
	Image      *Registry[runtime.ImageGenerator]
}

// NewSet creates the four registries preloaded with the built-in dummy
// backends, so the gateway always has a servable model for every capability.
//
// # Outputs
//
//   - *Set: Registries containing "dummy-model" (text and vision),
//     "dummy-embedding", and "dummy-image".
func NewSet() *Set {
	s := &Set{
		LLM:        New[runtime.TextGenerator](),
		Multimodal: New[runtime.VisionGenerator](),
		Embedding:  New[runtime.Embedder](),
		Image:      New[runtime.ImageGenerator](),
	}
	s.LLM.Insert("dummy-model", runtime.NewDummyText())
	s.Multimodal.Insert("dummy-model", runtime.NewDummyVision())
	s.Embedding.Insert("dummy-embedding", runtime.NewDummyEmbedding(runtime.DummyEmbeddingDim))
	s.Image.Insert("dummy-image", runtime.NewDummyImage())
	return s
}
