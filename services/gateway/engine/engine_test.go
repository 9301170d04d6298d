// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianServe/services/gateway/registry"
	"github.com/AleutianAI/AleutianServe/services/runtime"
)

// fakeTextBackend is a controllable TextGenerator for dispatch tests.
type fakeTextBackend struct {
	mu        sync.Mutex
	calls     int
	active    int
	maxActive int
	block     chan struct{} // non-nil: Generate parks until closed
	err       error
	reply     string
}

func (f *fakeTextBackend) Generate(_ context.Context, prompt string, _ runtime.GenerationOptions) (string, error) {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return "fake: " + prompt, nil
}

func (f *fakeTextBackend) snapshot() (calls, active, maxActive int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.active, f.maxActive
}

// panicTextBackend simulates a backend bug.
type panicTextBackend struct{}

func (panicTextBackend) Generate(context.Context, string, runtime.GenerationOptions) (string, error) {
	panic("backend exploded")
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Registries == nil {
		cfg.Registries = registry.NewSet()
	}
	eng := New(cfg)
	eng.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
	})
	return eng
}

// collectStream drains a stream channel to closure, failing the test if the
// worker never finishes.
func collectStream(t *testing.T, stream <-chan string) []string {
	t.Helper()
	var out []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-stream:
			if !ok {
				return out
			}
			out = append(out, s)
		case <-timeout:
			t.Fatalf("stream did not close; got %d emissions", len(out))
		}
	}
}

func TestEngine_BufferedChat(t *testing.T) {
	eng := newTestEngine(t, Config{})

	resp, cached, err := eng.ProcessChat(context.Background(), textRequest("dummy-model", "hello"))
	require.NoError(t, err)
	assert.False(t, cached)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "dummy-model", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, "Echo: hello", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Zero(t, resp.Usage.TotalTokens)
}

func TestEngine_BufferedChatHonorsMaxTokens(t *testing.T) {
	eng := newTestEngine(t, Config{})

	maxTokens := 3
	req := textRequest("dummy-model", "hello world")
	req.MaxTokens = &maxTokens

	resp, _, err := eng.ProcessChat(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Echo: hel", resp.Choices[0].Message.Content)
}

func TestEngine_CacheIdempotence(t *testing.T) {
	set := registry.NewSet()
	fake := &fakeTextBackend{reply: "cached reply"}
	set.LLM.Insert("fake-model", fake)
	eng := newTestEngine(t, Config{Registries: set})

	req := textRequest("fake-model", "same question")

	first, firstCached, err := eng.ProcessChat(context.Background(), req)
	require.NoError(t, err)
	second, secondCached, err := eng.ProcessChat(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, firstCached)
	assert.True(t, secondCached)
	assert.Equal(t, first.ID, second.ID, "cache hit must replay the stored response")

	calls, _, _ := fake.snapshot()
	assert.Equal(t, 1, calls, "second request must not reach the backend")

	stats := eng.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Stores)
}

func TestEngine_CacheKeyedByOptions(t *testing.T) {
	set := registry.NewSet()
	fake := &fakeTextBackend{}
	set.LLM.Insert("fake-model", fake)
	eng := newTestEngine(t, Config{Registries: set})

	plain := textRequest("fake-model", "same question")
	tuned := textRequest("fake-model", "same question")
	temperature := float32(0.2)
	tuned.Temperature = &temperature

	_, _, err := eng.ProcessChat(context.Background(), plain)
	require.NoError(t, err)
	_, _, err = eng.ProcessChat(context.Background(), tuned)
	require.NoError(t, err)

	calls, _, _ := fake.snapshot()
	assert.Equal(t, 2, calls, "different options are different cache keys")
}

func TestEngine_StreamingProtocol(t *testing.T) {
	eng := newTestEngine(t, Config{})

	stream, err := eng.ProcessChatStream(context.Background(), textRequest("dummy-model", "hi"))
	require.NoError(t, err)

	emissions := collectStream(t, stream)
	require.Len(t, emissions, 4)

	var role, content, done datatypes.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(emissions[0]), &role))
	require.NoError(t, json.Unmarshal([]byte(emissions[1]), &content))
	require.NoError(t, json.Unmarshal([]byte(emissions[2]), &done))

	// Role chunk announces the assistant with no content or finish.
	require.Len(t, role.Choices, 1)
	require.NotNil(t, role.Choices[0].Delta.Role)
	assert.Equal(t, "assistant", *role.Choices[0].Delta.Role)
	assert.Nil(t, role.Choices[0].Delta.Content)
	assert.Nil(t, role.Choices[0].FinishReason)

	// Content chunk carries the entire completion at once.
	require.NotNil(t, content.Choices[0].Delta.Content)
	assert.Equal(t, "Echo: hi", *content.Choices[0].Delta.Content)
	assert.Nil(t, content.Choices[0].FinishReason)

	// Done chunk has an empty delta and the stop marker.
	assert.Nil(t, done.Choices[0].Delta.Role)
	assert.Nil(t, done.Choices[0].Delta.Content)
	require.NotNil(t, done.Choices[0].FinishReason)
	assert.Equal(t, "stop", *done.Choices[0].FinishReason)

	// All chunks share one identity; the sentinel is a raw string.
	assert.Equal(t, role.ID, content.ID)
	assert.Equal(t, role.ID, done.ID)
	assert.Equal(t, role.Created, done.Created)
	assert.Equal(t, "chat.completion.chunk", role.Object)
	assert.Equal(t, datatypes.StreamDoneSentinel, emissions[3])
}

func TestEngine_StreamingUnknownModelClosesSilently(t *testing.T) {
	eng := newTestEngine(t, Config{})

	stream, err := eng.ProcessChatStream(context.Background(), textRequest("nope", "hi"))
	require.NoError(t, err)

	emissions := collectStream(t, stream)
	assert.Empty(t, emissions, "unknown model must close the stream without emitting")
}

func TestEngine_StreamingBackendErrorInline(t *testing.T) {
	set := registry.NewSet()
	set.LLM.Insert("broken", &fakeTextBackend{err: errors.New("gpu on fire")})
	eng := newTestEngine(t, Config{Registries: set})

	stream, err := eng.ProcessChatStream(context.Background(), textRequest("broken", "hi"))
	require.NoError(t, err)

	emissions := collectStream(t, stream)
	require.Len(t, emissions, 4)

	var content datatypes.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(emissions[1]), &content))
	require.NotNil(t, content.Choices[0].Delta.Content)
	assert.Equal(t, "[error: gpu on fire]", *content.Choices[0].Delta.Content)
	assert.Equal(t, datatypes.StreamDoneSentinel, emissions[3])
}

func TestEngine_StreamingNeverCached(t *testing.T) {
	set := registry.NewSet()
	fake := &fakeTextBackend{}
	set.LLM.Insert("fake-model", fake)
	eng := newTestEngine(t, Config{Registries: set})

	req := textRequest("fake-model", "stream me")
	for i := 0; i < 2; i++ {
		stream, err := eng.ProcessChatStream(context.Background(), req)
		require.NoError(t, err)
		collectStream(t, stream)
	}

	calls, _, _ := fake.snapshot()
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(0), eng.CacheStats().Stores)
}

func TestEngine_ChatModelNotFound(t *testing.T) {
	eng := newTestEngine(t, Config{})

	_, _, err := eng.ProcessChat(context.Background(), textRequest("nope", "hi"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "Model nope not found", err.Error())
}

func TestEngine_ChatVisionRouting(t *testing.T) {
	visionRequest := func(model, text string, urls ...string) datatypes.ChatCompletionRequest {
		parts := []datatypes.ContentPart{{Type: datatypes.ContentPartText, Text: text}}
		for _, u := range urls {
			parts = append(parts, datatypes.ContentPart{
				Type:     datatypes.ContentPartImageURL,
				ImageURL: &datatypes.ImageURLPart{URL: u},
			})
		}
		return datatypes.ChatCompletionRequest{
			Model: model,
			Messages: []datatypes.ChatMessage{
				{Role: "user", Content: datatypes.NewPartsContent(parts)},
			},
		}
	}

	t.Run("urls reach the multimodal backend", func(t *testing.T) {
		eng := newTestEngine(t, Config{})

		resp, _, err := eng.ProcessChat(context.Background(),
			visionRequest("dummy-model", "look at this", "https://example.com/a.jpg"))
		require.NoError(t, err)
		content := resp.Choices[0].Message.Content
		assert.True(t, strings.HasPrefix(content, "Echo(Vision): "), content)
		assert.Contains(t, content, "images=1")
	})

	t.Run("urls ignored when only an llm matches", func(t *testing.T) {
		set := registry.NewSet()
		set.Multimodal.Remove("dummy-model")
		eng := newTestEngine(t, Config{Registries: set})

		resp, _, err := eng.ProcessChat(context.Background(),
			visionRequest("dummy-model", "look at this", "https://example.com/a.jpg"))
		require.NoError(t, err)
		assert.Equal(t, "Echo: look at this", resp.Choices[0].Message.Content)
	})

	t.Run("text-only request against vision-only model", func(t *testing.T) {
		set := registry.NewSet()
		set.Multimodal.Insert("vision-only", runtime.NewDummyVision())
		eng := newTestEngine(t, Config{Registries: set})

		_, _, err := eng.ProcessChat(context.Background(), textRequest("vision-only", "hi"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrRequiresImages))
		assert.Equal(t, "Model vision-only requires images", err.Error())
	})
}

func TestEngine_BufferedBackendErrorDegrades(t *testing.T) {
	set := registry.NewSet()
	set.LLM.Insert("broken", &fakeTextBackend{err: errors.New("gpu on fire")})
	eng := newTestEngine(t, Config{Registries: set})

	resp, _, err := eng.ProcessChat(context.Background(), textRequest("broken", "hi"))
	require.NoError(t, err, "default mode masks backend failures")
	assert.Equal(t, "", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
}

func TestEngine_BufferedBackendErrorStrict(t *testing.T) {
	set := registry.NewSet()
	set.LLM.Insert("broken", &fakeTextBackend{err: errors.New("gpu on fire")})
	eng := newTestEngine(t, Config{Registries: set, StrictBackendErrors: true})

	_, _, err := eng.ProcessChat(context.Background(), textRequest("broken", "hi"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackend))
	assert.Equal(t, "gpu on fire", err.Error())
}

func TestEngine_ConcurrencyBoundedByWorkers(t *testing.T) {
	const workers = 2
	const requests = 6

	set := registry.NewSet()
	fake := &fakeTextBackend{block: make(chan struct{})}
	set.LLM.Insert("fake-model", fake)
	eng := newTestEngine(t, Config{Registries: set, Workers: workers})

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Distinct prompts so the cache cannot collapse them.
			req := textRequest("fake-model", strings.Repeat("x", i+1))
			_, _, err := eng.ProcessChat(context.Background(), req)
			assert.NoError(t, err)
		}(i)
	}

	// All permits must be taken, and no more than that.
	require.Eventually(t, func() bool {
		_, active, _ := fake.snapshot()
		return active == workers
	}, 2*time.Second, 5*time.Millisecond)

	// Give stragglers a chance to overshoot, then release everyone.
	time.Sleep(50 * time.Millisecond)
	close(fake.block)
	wg.Wait()

	calls, _, maxActive := fake.snapshot()
	assert.Equal(t, requests, calls)
	assert.Equal(t, workers, maxActive, "concurrent backend calls must not exceed the permit count")
}

func TestEngine_EnqueueBackpressure(t *testing.T) {
	// No Start: nothing drains the queue, so the second enqueue must park
	// until its context expires.
	eng := New(Config{QueueCapacity: 1})

	_, err := eng.ProcessChatStream(context.Background(), textRequest("dummy-model", "fills the queue"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = eng.ProcessChatStream(ctx, textRequest("dummy-model", "overflows"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to send request to engine")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestEngine_ShutdownRejectsNewWork(t *testing.T) {
	eng := New(Config{})
	eng.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, eng.Shutdown(ctx))

	_, _, err := eng.ProcessChat(context.Background(), textRequest("dummy-model", "hi"))
	assert.True(t, errors.Is(err, ErrEngineClosed))

	_, err = eng.ProcessChatStream(context.Background(), textRequest("dummy-model", "hi"))
	assert.True(t, errors.Is(err, ErrEngineClosed))
}

func TestEngine_WorkerPanicDoesNotWedgeCaller(t *testing.T) {
	set := registry.NewSet()
	set.LLM.Insert("panicky", panicTextBackend{})
	eng := newTestEngine(t, Config{Registries: set, Workers: 1})

	_, _, err := eng.ProcessChat(context.Background(), textRequest("panicky", "hi"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReplyClosed))

	// The permit was released; the engine still serves healthy models.
	resp, _, err := eng.ProcessChat(context.Background(), textRequest("dummy-model", "still alive"))
	require.NoError(t, err)
	assert.Equal(t, "Echo: still alive", resp.Choices[0].Message.Content)
}

func TestEngine_Embeddings(t *testing.T) {
	eng := newTestEngine(t, Config{})

	resp, err := eng.ProcessEmbeddings(context.Background(), datatypes.EmbeddingsRequest{
		Model: "dummy-embedding",
		Input: datatypes.EmbeddingsInput{"first", "second"},
	})
	require.NoError(t, err)

	assert.Equal(t, "list", resp.Object)
	assert.Equal(t, "dummy-embedding", resp.Model)
	require.Len(t, resp.Data, 2)
	for i, obj := range resp.Data {
		assert.Equal(t, "embedding", obj.Object)
		assert.Equal(t, i, obj.Index)
		assert.Len(t, obj.Embedding, 384)
	}
	assert.Zero(t, resp.Usage.TotalTokens)
}

func TestEngine_EmbeddingsModelNotFound(t *testing.T) {
	eng := newTestEngine(t, Config{})

	_, err := eng.ProcessEmbeddings(context.Background(), datatypes.EmbeddingsRequest{
		Model: "nope",
		Input: datatypes.EmbeddingsInput{"x"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "Model nope not found", err.Error())
}

func TestEngine_Images(t *testing.T) {
	eng := newTestEngine(t, Config{})

	images, err := eng.ProcessImages(context.Background(), datatypes.ImagesGenerationRequest{
		Model:  "dummy-image",
		Prompt: "a cute cat",
		N:      2,
		Size:   "256x256",
	})
	require.NoError(t, err)

	require.Len(t, images, 2)
	for _, img := range images {
		assert.True(t, strings.HasPrefix(string(img), "DUMMY_PNG:256x256:"), string(img))
	}
}

func TestEngine_ImagesDefaultsApplied(t *testing.T) {
	eng := newTestEngine(t, Config{})

	images, err := eng.ProcessImages(context.Background(), datatypes.ImagesGenerationRequest{
		Model:  "dummy-image",
		Prompt: "a cute cat",
	})
	require.NoError(t, err)

	require.Len(t, images, 1)
	assert.True(t, strings.HasPrefix(string(images[0]), "DUMMY_PNG:512x512:"))
}

func TestEngine_AdminLifecycle(t *testing.T) {
	eng := newTestEngine(t, Config{})

	t.Run("initial listing", func(t *testing.T) {
		models := eng.ListModels()
		assert.Equal(t, []string{"dummy-model"}, models.LLM)
		assert.Equal(t, []string{"dummy-embedding"}, models.Embedding)
		assert.Equal(t, []string{"dummy-model"}, models.Multimodal)
		assert.Equal(t, []string{"dummy-image"}, models.Image)
	})

	t.Run("load falls back to dummy on bad path", func(t *testing.T) {
		require.NoError(t, eng.LoadModel("llm", "extra-llm", "llamacpp", ""))
		assert.Equal(t, []string{"dummy-model", "extra-llm"}, eng.ListModels().LLM)

		resp, _, err := eng.ProcessChat(context.Background(), textRequest("extra-llm", "ping"))
		require.NoError(t, err)
		assert.Equal(t, "Echo: ping", resp.Choices[0].Message.Content)
	})

	t.Run("load rejects image kind", func(t *testing.T) {
		err := eng.LoadModel("image", "new-image", "", "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownKind))
	})

	t.Run("load rejects bogus kind", func(t *testing.T) {
		assert.True(t, errors.Is(eng.LoadModel("bogus", "x", "", ""), ErrUnknownKind))
	})

	t.Run("load rejects malformed name", func(t *testing.T) {
		require.Error(t, eng.LoadModel("llm", "bad name!", "dummy", ""))
		assert.NotContains(t, eng.ListModels().LLM, "bad name!")
	})

	t.Run("load trims surrounding whitespace", func(t *testing.T) {
		require.NoError(t, eng.LoadModel("llm", "  padded-name ", "dummy", ""))
		assert.Contains(t, eng.ListModels().LLM, "padded-name")
		require.NoError(t, eng.UnloadModel("llm", "padded-name"))
	})

	t.Run("unload removes only the named entry", func(t *testing.T) {
		require.NoError(t, eng.UnloadModel("llm", "extra-llm"))
		assert.Equal(t, []string{"dummy-model"}, eng.ListModels().LLM)
	})

	t.Run("unload unknown name is a no-op", func(t *testing.T) {
		require.NoError(t, eng.UnloadModel("llm", "never-existed"))
		assert.Equal(t, []string{"dummy-model"}, eng.ListModels().LLM)
	})

	t.Run("unload supports the image kind", func(t *testing.T) {
		require.NoError(t, eng.UnloadModel("image", "dummy-image"))
		assert.Empty(t, eng.ListModels().Image)

		_, err := eng.ProcessImages(context.Background(), datatypes.ImagesGenerationRequest{
			Model:  "dummy-image",
			Prompt: "gone",
		})
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("unload rejects bogus kind", func(t *testing.T) {
		assert.True(t, errors.Is(eng.UnloadModel("bogus", "x"), ErrUnknownKind))
	})
}
