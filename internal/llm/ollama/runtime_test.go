package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/llamalith/llamalith/internal/config"
	"github.com/llamalith/llamalith/internal/llm"
	"github.com/llamalith/llamalith/internal/llm/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) config.RuntimeConfig {
	return config.RuntimeConfig{
		BaseURL:     baseURL,
		Models:      map[string]string{"mistral": "mistral:7b-instruct"},
		LoadTimeout: 5 * time.Second,
		GenTimeout:  5 * time.Second,
	}
}

func TestLoadModel_UnknownKey(t *testing.T) {
	rt := ollama.NewRuntime(testConfig("http://localhost:0"))

	_, err := rt.LoadModel(context.Background(), "no-such-model")
	assert.ErrorIs(t, err, llm.ErrModelNotFound)
}

func TestLoadModel_ServerDown(t *testing.T) {
	// Nothing listens on this address.
	rt := ollama.NewRuntime(testConfig("http://127.0.0.1:1"))

	_, err := rt.LoadModel(context.Background(), "mistral")
	assert.ErrorIs(t, err, llm.ErrRuntimeUnavailable)
}

func TestLoadModel_MissingFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "model not found"})
	}))
	defer srv.Close()

	rt := ollama.NewRuntime(testConfig(srv.URL))
	_, err := rt.LoadModel(context.Background(), "mistral")
	assert.ErrorIs(t, err, llm.ErrModelNotFound)
}

func TestComplete_SendsOptionsAndReturnsResponse(t *testing.T) {
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, body)

		json.NewEncoder(w).Encode(map[string]string{"response": "hi there"})
	}))
	defer srv.Close()

	rt := ollama.NewRuntime(testConfig(srv.URL))
	ctx := context.Background()

	model, err := rt.LoadModel(ctx, "mistral")
	require.NoError(t, err)
	assert.Equal(t, "mistral", model.Key())

	out, err := model.Complete(ctx, "[USER]\nhello\n[ASSISTANT]\n", llm.Params{
		Temperature: 0.8,
		TopK:        40,
		MaxTokens:   512,
		Mirostat:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)

	require.Len(t, requests, 2, "one warm-up call, one completion")

	warmup := requests[0]
	assert.Equal(t, "mistral:7b-instruct", warmup["model"])
	assert.Empty(t, warmup["prompt"])

	completion := requests[1]
	assert.Equal(t, true, completion["raw"])
	assert.Equal(t, false, completion["stream"])
	opts, ok := completion["options"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.8, opts["temperature"])
	assert.Equal(t, float64(512), opts["num_predict"])
	assert.Equal(t, float64(2), opts["mirostat"])
	assert.Contains(t, opts["stop"], "[USER]")
}

func TestComplete_BoundsOutputToContextWindow(t *testing.T) {
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, body)
		json.NewEncoder(w).Encode(map[string]string{"response": "ok"})
	}))
	defer srv.Close()

	rt := ollama.NewRuntime(testConfig(srv.URL))
	ctx := context.Background()

	model, err := rt.LoadModel(ctx, "mistral")
	require.NoError(t, err)

	// A prompt big enough to leave less than the minimum floor in a
	// small context window.
	prompt := make([]byte, 4000)
	for i := range prompt {
		prompt[i] = 'a'
	}
	params := llm.Params{
		MaxTokens:     512,
		ContextLength: 1024,
		SafetyMargin:  128,
	}
	_, err = model.Complete(ctx, string(prompt), params)
	require.NoError(t, err)

	require.Len(t, requests, 2)
	opts, ok := requests[1]["options"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(params.OutputBudget(string(prompt))), opts["num_predict"])
	assert.Equal(t, float64(256), opts["num_predict"], "floors at the minimum output budget")
	assert.Equal(t, float64(1024), opts["num_ctx"])
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength < 200 {
			// Warm-up call succeeds.
			json.NewEncoder(w).Encode(map[string]string{"response": ""})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "out of memory"})
	}))
	defer srv.Close()

	rt := ollama.NewRuntime(testConfig(srv.URL))
	ctx := context.Background()

	model, err := rt.LoadModel(ctx, "mistral")
	require.NoError(t, err)

	longPrompt := make([]byte, 512)
	for i := range longPrompt {
		longPrompt[i] = 'a'
	}
	_, err = model.Complete(ctx, string(longPrompt), llm.Params{})
	assert.ErrorIs(t, err, llm.ErrInference)
	assert.ErrorContains(t, err, "out of memory")
}
