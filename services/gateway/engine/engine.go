// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine implements the dispatch core of the gateway: a bounded
// queue of typed request envelopes, a supervisor that fans envelopes out to
// detached workers under a semaphore, per-capability model routing, and a
// TTL-bounded response cache for idempotent buffered chat calls.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/AleutianServe/pkg/validation"
	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianServe/services/gateway/observability"
	"github.com/AleutianAI/AleutianServe/services/gateway/registry"
	"github.com/AleutianAI/AleutianServe/services/runtime"
)

// Queue and stream sizing.
const (
	// DefaultQueueCapacity bounds accepted-but-unscheduled requests.
	// Producers block when the queue is full.
	DefaultQueueCapacity = 100

	// DefaultStreamBuffer sizes a stream channel to hold every emission of
	// one stream (role, content, done, sentinel), so a worker finishes its
	// sends even when the client has gone away.
	DefaultStreamBuffer = 4

	// DefaultWorkers is the permit count used when the configuration
	// supplies nothing usable.
	DefaultWorkers = 4
)

// =============================================================================
// Error Classification
// =============================================================================

// Classification sentinels. The HTTP layer maps these to status codes with
// errors.Is; the wire-visible message is the error's own text.
var (
	// ErrNotFound marks a model name absent from every relevant registry.
	// Surfaces as a 400-class failure.
	ErrNotFound = errors.New("model not found")

	// ErrRequiresImages marks a text-only request against a vision-only
	// model. Surfaces as a 400-class failure.
	ErrRequiresImages = errors.New("model requires images")

	// ErrBackend wraps a backend invocation failure. Chat promotes it to
	// 502 only under strict mode; embeddings and images report 400.
	ErrBackend = errors.New("backend failure")

	// ErrEngineClosed is returned for work submitted after Shutdown.
	ErrEngineClosed = errors.New("engine is shut down")

	// ErrReplyClosed is returned when a reply never arrives. It should not
	// happen while the engine is running.
	ErrReplyClosed = errors.New("Engine response channel closed")

	// ErrUnknownKind rejects a load/unload kind outside the accepted set.
	ErrUnknownKind = errors.New("unknown kind")
)

// classifiedError pairs a wire-visible message with a sentinel so handlers
// can branch on errors.Is without parsing text.
type classifiedError struct {
	msg  string
	kind error
}

func (e *classifiedError) Error() string { return e.msg }
func (e *classifiedError) Unwrap() error { return e.kind }

func notFoundError(model string) error {
	return &classifiedError{msg: fmt.Sprintf("Model %s not found", model), kind: ErrNotFound}
}

func requiresImagesError(model string) error {
	return &classifiedError{msg: fmt.Sprintf("Model %s requires images", model), kind: ErrRequiresImages}
}

func backendError(err error) error {
	return &classifiedError{msg: err.Error(), kind: ErrBackend}
}

// =============================================================================
// Engine
// =============================================================================

// Config carries the tunables for a dispatch engine.
type Config struct {
	// Registries to route against. Nil gets a fresh dummy-seeded Set.
	Registries *registry.Set
	// Workers is the semaphore capacity bounding concurrent backend calls.
	Workers int
	// QueueCapacity bounds the envelope queue. Default 100.
	QueueCapacity int
	// CacheCapacity and CacheTTL bound the response cache.
	CacheCapacity int
	CacheTTL      time.Duration
	// StreamBuffer sizes per-stream channels. Default 4.
	StreamBuffer int
	// StrictBackendErrors promotes buffered chat backend failures to
	// errors instead of empty-content responses.
	StrictBackendErrors bool
	// Metrics may be nil; all recording helpers tolerate that.
	Metrics *observability.GatewayMetrics
}

// applyConfigDefaults fills the zero values of cfg in place.
func applyConfigDefaults(cfg *Config) {
	if cfg.Registries == nil {
		cfg.Registries = registry.NewSet()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = DefaultStreamBuffer
	}
}

// Engine is the dispatch core.
//
// # Description
//
// API handlers call the Process* methods, which build envelopes and block
// on the queue (back-pressure) and then on a private reply channel. A
// single supervisor goroutine drains the queue and spawns one detached
// worker per envelope; each worker acquires a semaphore permit before
// touching a backend and releases it on every path, so at most Workers
// backend invocations run concurrently regardless of queue depth.
//
// Registries may be mutated (LoadModel/UnloadModel) concurrently with
// dispatch; in-flight requests keep the handle they already resolved.
//
// # Thread Safety
//
// Safe for concurrent use after Start.
type Engine struct {
	registries *registry.Set
	queue      chan envelope
	permits    *semaphore.Weighted
	cache      *responseCache
	metrics    *observability.GatewayMetrics

	workers      int
	streamBuffer int
	strictErrors bool

	started  bool
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds an engine from cfg. Call Start before submitting work.
func New(cfg Config) *Engine {
	applyConfigDefaults(&cfg)
	return &Engine{
		registries:   cfg.Registries,
		queue:        make(chan envelope, cfg.QueueCapacity),
		permits:      semaphore.NewWeighted(int64(cfg.Workers)),
		cache:        newResponseCache(cfg.CacheCapacity, cfg.CacheTTL, cfg.Metrics),
		metrics:      cfg.Metrics,
		workers:      cfg.Workers,
		streamBuffer: cfg.StreamBuffer,
		strictErrors: cfg.StrictBackendErrors,
		done:         make(chan struct{}),
	}
}

// Start launches the supervisor. Calling Start twice is a no-op.
func (e *Engine) Start() {
	if e.started {
		return
	}
	e.started = true
	e.wg.Add(1)
	go e.supervise()
	slog.Info("Dispatch engine started",
		"workers", e.workers,
		"queue_capacity", cap(e.queue))
}

// Shutdown stops intake and waits for the supervisor and all in-flight
// workers to finish, or for ctx to expire. Queued envelopes that were never
// dispatched are abandoned; their callers unblock with ErrEngineClosed.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.done) })

	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		slog.Info("Dispatch engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown: %w", ctx.Err())
	}
}

// Registries exposes the live registry set for the manifest watcher and
// tests. Mutations through it are safe at any time.
func (e *Engine) Registries() *registry.Set {
	return e.registries
}

// CacheStats snapshots the response-cache counters.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// supervise is the sole queue consumer: it dequeues envelopes and hands
// each to a detached worker goroutine. Dequeue rate is unbounded; the
// semaphore inside the worker enforces the execution bound.
func (e *Engine) supervise() {
	defer e.wg.Done()
	for {
		select {
		case env := <-e.queue:
			e.metrics.EnvelopeDequeued()
			e.wg.Add(1)
			go e.work(env)
		case <-e.done:
			return
		}
	}
}

// work runs one envelope to completion under a permit. A panicking backend
// must not take the process down: the caller is unblocked with
// ErrReplyClosed (or a closed stream) and the permit is released.
func (e *Engine) work(env envelope) {
	defer e.wg.Done()

	// The permit wait is not cancelable by request contexts; backend
	// execution order is the semaphore's.
	if err := e.permits.Acquire(context.Background(), 1); err != nil {
		slog.Error("Worker permit acquisition failed", "error", err)
		return
	}
	e.metrics.WorkerStarted()
	defer func() {
		e.permits.Release(1)
		e.metrics.WorkerFinished()
	}()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker panicked", "panic", r)
			abandonEnvelope(env)
		}
	}()

	switch env := env.(type) {
	case *chatEnvelope:
		e.dispatchChat(env)
	case *embedEnvelope:
		e.dispatchEmbeddings(env)
	case *imageEnvelope:
		e.dispatchImages(env)
	}
}

// abandonEnvelope unblocks the caller of an envelope whose worker died
// before replying. Reply channels are buffered, so the sends cannot block.
func abandonEnvelope(env envelope) {
	switch env := env.(type) {
	case *chatEnvelope:
		if env.stream != nil {
			close(env.stream)
			return
		}
		env.reply <- chatResult{err: ErrReplyClosed}
	case *embedEnvelope:
		env.reply <- embedResult{err: ErrReplyClosed}
	case *imageEnvelope:
		env.reply <- imageResult{err: ErrReplyClosed}
	}
}

// enqueue pushes env, blocking while the queue is full. The caller context
// and engine shutdown both unblock the wait with an error; an envelope is
// never silently dropped.
func (e *Engine) enqueue(ctx context.Context, env envelope) error {
	select {
	case <-e.done:
		return ErrEngineClosed
	default:
	}
	select {
	case e.queue <- env:
		e.metrics.EnvelopeQueued()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("Failed to send request to engine: %w", ctx.Err())
	case <-e.done:
		return ErrEngineClosed
	}
}

// =============================================================================
// Chat
// =============================================================================

// ProcessChat runs a buffered chat completion.
//
// # Description
//
// Consults the response cache first: a hit returns immediately with no
// enqueue. On a miss the request is queued and the reply awaited; a
// successful response is inserted into the cache keyed by the request
// fingerprint before returning.
//
// # Outputs
//
//   - ChatCompletionResponse: The completion, possibly replayed from cache.
//   - bool: True when the response was served from the cache.
//   - error: Non-nil on enqueue failure, routing failure, or backend
//     failure under strict mode.
func (e *Engine) ProcessChat(ctx context.Context, req datatypes.ChatCompletionRequest) (datatypes.ChatCompletionResponse, bool, error) {
	key := fingerprintChat(&req)
	if resp, ok := e.cache.Get(key); ok {
		return resp, true, nil
	}

	env := &chatEnvelope{
		req:   req,
		reply: make(chan chatResult, 1),
	}
	if err := e.enqueue(ctx, env); err != nil {
		return datatypes.ChatCompletionResponse{}, false, err
	}

	select {
	case res := <-env.reply:
		if res.err != nil {
			return datatypes.ChatCompletionResponse{}, false, res.err
		}
		e.cache.Put(key, res.resp)
		return res.resp, false, nil
	case <-ctx.Done():
		// The worker's send lands in the buffered reply and is dropped.
		return datatypes.ChatCompletionResponse{}, false, fmt.Errorf("awaiting chat reply: %w", ctx.Err())
	case <-e.done:
		return datatypes.ChatCompletionResponse{}, false, ErrEngineClosed
	}
}

// ProcessChatStream runs a streaming chat completion.
//
// # Description
//
// Returns the channel the worker will emit marshaled chunk payloads on:
// role, content, done, then the raw [DONE] sentinel, after which the
// channel is closed. A model-routing failure closes the channel without
// emissions. Streaming responses bypass the cache entirely.
func (e *Engine) ProcessChatStream(ctx context.Context, req datatypes.ChatCompletionRequest) (<-chan string, error) {
	env := &chatEnvelope{
		req:    req,
		stream: make(chan string, e.streamBuffer),
	}
	if err := e.enqueue(ctx, env); err != nil {
		return nil, err
	}
	return env.stream, nil
}

// =============================================================================
// Embeddings
// =============================================================================

// ProcessEmbeddings runs an embeddings request to completion.
func (e *Engine) ProcessEmbeddings(ctx context.Context, req datatypes.EmbeddingsRequest) (datatypes.EmbeddingsResponse, error) {
	env := &embedEnvelope{
		req:   req,
		reply: make(chan embedResult, 1),
	}
	if err := e.enqueue(ctx, env); err != nil {
		return datatypes.EmbeddingsResponse{}, err
	}

	select {
	case res := <-env.reply:
		return res.resp, res.err
	case <-ctx.Done():
		return datatypes.EmbeddingsResponse{}, fmt.Errorf("awaiting embeddings reply: %w", ctx.Err())
	case <-e.done:
		return datatypes.EmbeddingsResponse{}, ErrEngineClosed
	}
}

// =============================================================================
// Images
// =============================================================================

// ProcessImages runs an image-generation request to completion, returning
// the raw image bytes. Base64 encoding happens at the HTTP layer.
func (e *Engine) ProcessImages(ctx context.Context, req datatypes.ImagesGenerationRequest) ([][]byte, error) {
	env := &imageEnvelope{
		req:   req,
		reply: make(chan imageResult, 1),
	}
	if err := e.enqueue(ctx, env); err != nil {
		return nil, err
	}

	select {
	case res := <-env.reply:
		return res.images, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("awaiting images reply: %w", ctx.Err())
	case <-e.done:
		return nil, ErrEngineClosed
	}
}

// =============================================================================
// Admin
// =============================================================================

// ListModels snapshots the four registry name-lists.
func (e *Engine) ListModels() datatypes.ModelsListResponse {
	return datatypes.ModelsListResponse{
		LLM:        e.registries.LLM.Names(),
		Embedding:  e.registries.Embedding.Names(),
		Multimodal: e.registries.Multimodal.Names(),
		Image:      e.registries.Image.Names(),
	}
}

// LoadModel installs a backend under name for kind, constructed by the
// provider loader. Loaders degrade to the dummy backend rather than fail,
// so the only errors here are an unloadable kind or a name that fails
// validation. Loading over an existing name replaces the entry; in-flight
// requests keep the old handle.
func (e *Engine) LoadModel(kind, name, provider, path string) error {
	k, ok := runtime.ParseKind(kind)
	if !ok {
		return ErrUnknownKind
	}
	name, err := validation.SanitizeModelName(name)
	if err != nil {
		return err
	}
	p := runtime.Provider(strings.ToLower(strings.TrimSpace(provider)))

	switch k {
	case runtime.KindLLM:
		e.registries.LLM.Insert(name, runtime.LoadText(name, p, path))
	case runtime.KindEmbedding:
		e.registries.Embedding.Insert(name, runtime.LoadEmbedder(name, p, path))
	case runtime.KindMultimodal:
		e.registries.Multimodal.Insert(name, runtime.LoadVision(name, p, path))
	default:
		// The image registry is preloaded and unloadable but has no
		// loadable provider.
		return ErrUnknownKind
	}
	slog.Info("Model loaded", "kind", kind, "model", name, "provider", string(p))
	return nil
}

// UnloadModel removes name from the kind's registry. Unknown names are a
// no-op; unknown kinds are an error. All four kinds are unloadable.
func (e *Engine) UnloadModel(kind, name string) error {
	k, ok := runtime.ParseKind(kind)
	if !ok {
		return ErrUnknownKind
	}
	switch k {
	case runtime.KindLLM:
		e.registries.LLM.Remove(name)
	case runtime.KindEmbedding:
		e.registries.Embedding.Remove(name)
	case runtime.KindMultimodal:
		e.registries.Multimodal.Remove(name)
	case runtime.KindImage:
		e.registries.Image.Remove(name)
	}
	slog.Info("Model unloaded", "kind", kind, "model", name)
	return nil
}
