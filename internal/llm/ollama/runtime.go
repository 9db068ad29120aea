// Package ollama implements llm.Runtime against a local Ollama server.
// "Loading" a model issues an empty-prompt generate call with a negative
// keep_alive, which makes Ollama page the weights in and pin them
// resident; the returned handle then reuses the hot model for every
// completion.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/llamalith/llamalith/internal/config"
	"github.com/llamalith/llamalith/internal/llm"
)

// Runtime talks to one Ollama server and owns the model key table.
type Runtime struct {
	baseURL     string
	models      map[string]string
	httpClient  *http.Client
	loadTimeout time.Duration
	genTimeout  time.Duration
}

// NewRuntime creates a Runtime from config.
func NewRuntime(cfg config.RuntimeConfig) *Runtime {
	return &Runtime{
		baseURL:     cfg.BaseURL,
		models:      cfg.Models,
		httpClient:  &http.Client{},
		loadTimeout: cfg.LoadTimeout,
		genTimeout:  cfg.GenTimeout,
	}
}

func (r *Runtime) Name() string { return "ollama" }

// LoadModel resolves key through the model table and warms the model up.
func (r *Runtime) LoadModel(ctx context.Context, key string) (llm.Model, error) {
	name, ok := r.models[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", llm.ErrModelNotFound, key)
	}

	loadCtx, cancel := context.WithTimeout(ctx, r.loadTimeout)
	defer cancel()

	// Empty prompt: Ollama loads the model and returns without generating.
	_, err := r.generate(loadCtx, generateRequest{
		Model:     name,
		KeepAlive: -1,
	})
	if err != nil {
		return nil, err
	}
	return &model{runtime: r, key: key, name: name}, nil
}

type model struct {
	runtime *Runtime
	key     string
	name    string
}

func (m *model) Key() string { return m.key }

func (m *model) Complete(ctx context.Context, prompt string, params llm.Params) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, m.runtime.genTimeout)
	defer cancel()

	resp, err := m.runtime.generate(genCtx, generateRequest{
		Model:     m.name,
		Prompt:    prompt,
		Raw:       true,
		KeepAlive: -1,
		Options: &generateOptions{
			Temperature:   params.Temperature,
			TopP:          params.TopP,
			TopK:          params.TopK,
			RepeatPenalty: params.RepeatPenalty,
			Mirostat:      params.Mirostat,
			MirostatTau:   params.MirostatTau,
			MirostatEta:   params.MirostatEta,
			NumPredict:    params.OutputBudget(prompt),
			NumCtx:        params.ContextLength,
			Stop:          llm.StopSequences(),
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// Close asks the server to release the model immediately. Best effort; a
// failed unload only costs memory until the server's own idle timeout.
func (m *model) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := m.runtime.generate(ctx, generateRequest{
		Model:     m.name,
		KeepAlive: 0,
	})
	return err
}

type generateRequest struct {
	Model     string           `json:"model"`
	Prompt    string           `json:"prompt"`
	Raw       bool             `json:"raw,omitempty"`
	Stream    bool             `json:"stream"`
	KeepAlive int              `json:"keep_alive"`
	Options   *generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"top_p"`
	TopK          int      `json:"top_k"`
	RepeatPenalty float64  `json:"repeat_penalty"`
	Mirostat      int      `json:"mirostat"`
	MirostatTau   float64  `json:"mirostat_tau"`
	MirostatEta   float64  `json:"mirostat_eta"`
	NumPredict    int      `json:"num_predict"`
	NumCtx        int      `json:"num_ctx,omitempty"`
	Stop          []string `json:"stop,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (r *Runtime) generate(ctx context.Context, req generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrRuntimeUnavailable, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read generate response: %w", err)
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", llm.ErrInference, err)
	}

	switch {
	case httpResp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", llm.ErrModelNotFound, resp.Error)
	case httpResp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d: %s", llm.ErrInference, httpResp.StatusCode, resp.Error)
	}
	return &resp, nil
}

var _ llm.Runtime = (*Runtime)(nil)
