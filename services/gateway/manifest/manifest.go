// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manifest hot-loads model registrations from a YAML file.
//
// The manifest lists model entries (name, kind, provider, path). At startup
// every entry is loaded into the live registries; afterwards a filesystem
// watcher re-applies the manifest whenever the file changes, with a
// debounce window so editors that write in bursts trigger one reload.
// Entries that disappear between generations are unloaded. A manifest that
// fails to parse leaves the previous generation untouched.
package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultDebounce is how long the watcher waits for the file to settle
// before reloading.
const DefaultDebounce = 200 * time.Millisecond

// Entry is one model registration.
type Entry struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Provider string `yaml:"provider"`
	Path     string `yaml:"path"`
}

// Document is the manifest file layout.
type Document struct {
	Models []Entry `yaml:"models"`
}

// Loader applies manifest entries to the live registries. *engine.Engine
// satisfies it.
type Loader interface {
	LoadModel(kind, name, provider, path string) error
	UnloadModel(kind, name string) error
}

// Parse decodes and validates a manifest document. An entry without a name
// or kind rejects the whole document, so a bad generation never half-applies.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	for i, entry := range doc.Models {
		if entry.Name == "" || entry.Kind == "" {
			return nil, fmt.Errorf("manifest entry %d: name and kind are required", i)
		}
	}
	return &doc, nil
}

// LoadFile reads and parses the manifest at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Watcher applies a manifest file to a Loader and keeps it applied as the
// file changes.
//
// # Thread Safety
//
// Safe for concurrent use; reloads are serialized through one goroutine.
type Watcher struct {
	path     string
	loader   Loader
	debounce time.Duration

	fswatch  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	current map[string]Entry // applied generation, keyed kind/name
}

// New creates a watcher for the manifest at path. A non-positive debounce
// falls back to DefaultDebounce. Call Start to load and begin watching.
func New(path string, loader Loader, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     filepath.Clean(path),
		loader:   loader,
		debounce: debounce,
		done:     make(chan struct{}),
		current:  make(map[string]Entry),
	}
}

// Start applies the manifest once and begins watching it.
//
// A manifest that cannot be read at startup disables the feature: Start
// logs and returns nil so a missing optional file never blocks boot. Other
// failures (watcher setup) are returned.
func (w *Watcher) Start() error {
	doc, err := LoadFile(w.path)
	if err != nil {
		slog.Warn("Model manifest unavailable, hot-reload disabled", "path", w.path, "error", err)
		return nil
	}

	fswatch, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("manifest watcher: %w", err)
	}
	// Watch the directory, not the file: editors commonly replace the file
	// by rename, which would orphan a watch on the file itself.
	if err := fswatch.Add(filepath.Dir(w.path)); err != nil {
		fswatch.Close()
		return fmt.Errorf("manifest watcher: %w", err)
	}
	w.fswatch = fswatch

	w.apply(doc)

	w.wg.Add(1)
	go w.run()
	return nil
}

// Stop halts the watcher. Safe to call multiple times; a watcher that never
// started watching (absent file) stops cleanly.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.fswatch != nil {
			w.fswatch.Close()
		}
	})
	w.wg.Wait()
}

// Entries returns the currently applied generation.
func (w *Watcher) Entries() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := make([]Entry, 0, len(w.current))
	for _, entry := range w.current {
		entries = append(entries, entry)
	}
	return entries
}

// run is the event loop: collect change events for our file, debounce, and
// reload when the timer fires.
func (w *Watcher) run() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fswatch.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		case err, ok := <-w.fswatch.Errors:
			if !ok {
				return
			}
			slog.Warn("Manifest watcher error", "error", err)
		}
	}
}

// reload re-reads the manifest. Parse failures keep the previous state.
func (w *Watcher) reload() {
	doc, err := LoadFile(w.path)
	if err != nil {
		slog.Warn("Model manifest reload failed, keeping previous state", "path", w.path, "error", err)
		return
	}
	w.apply(doc)
}

// apply loads every entry of doc and unloads entries from the previous
// generation that doc no longer names. Per-entry load failures skip the
// entry without aborting the generation.
func (w *Watcher) apply(doc *Document) {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := make(map[string]Entry, len(doc.Models))
	for _, entry := range doc.Models {
		if err := w.loader.LoadModel(entry.Kind, entry.Name, entry.Provider, entry.Path); err != nil {
			slog.Warn("Manifest entry rejected",
				"model", entry.Name, "kind", entry.Kind, "error", err)
			continue
		}
		next[entry.Kind+"/"+entry.Name] = entry
	}

	for key, entry := range w.current {
		if _, kept := next[key]; kept {
			continue
		}
		if err := w.loader.UnloadModel(entry.Kind, entry.Name); err != nil {
			slog.Warn("Manifest unload failed",
				"model", entry.Name, "kind", entry.Kind, "error", err)
		}
	}

	w.current = next
	slog.Info("Model manifest applied", "path", w.path, "entries", len(next))
}
