// Package llm defines the model runtime abstraction the workers run
// inference through: loading a model key into a ready handle, caching
// handles per process, and executing generation calls against them.
package llm

import (
	"context"

	"github.com/llamalith/llamalith/internal/config"
)

// Runtime resolves a model key into a loaded, inference-ready handle.
// Loading is expensive (seconds, gigabytes of resident memory) and is
// expected to happen at most once per key per process; callers go through
// a ModelCache rather than calling LoadModel directly.
type Runtime interface {
	// LoadModel returns a handle for the given key, raising
	// ErrModelNotFound for keys absent from the model table.
	LoadModel(ctx context.Context, key string) (Model, error)
	// Name returns the runtime identifier (e.g. "ollama").
	Name() string
}

// Model is a process-local handle to a loaded model. Handles are owned by
// exactly one worker process and used by one generation call at a time;
// they are never shared across processes.
type Model interface {
	// Key returns the model key the handle was loaded for.
	Key() string
	// Complete runs generation against the rendered prompt. It blocks for
	// the duration of inference and never returns a partial result.
	Complete(ctx context.Context, prompt string, params Params) (string, error)
	// Close releases the handle's resources, used on cache eviction.
	Close() error
}

// Params are the sampling knobs applied uniformly to every generation
// call. Jobs vary only in prompt content, never in sampling.
type Params struct {
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	Mirostat      int
	MirostatTau   float64
	MirostatEta   float64
	MaxTokens     int
	ContextLength int
	SafetyMargin  int
}

// minOutputTokens floors the elastic budget so a near-full context still
// yields a usable reply instead of a truncated fragment.
const minOutputTokens = 256

// OutputBudget returns how many output tokens a generation call for the
// given prompt may request: the context window minus the prompt minus
// SafetyMargin reserved tokens, floored at minOutputTokens and capped at
// MaxTokens. Prompt length is a rough four-bytes-per-token estimate; the
// runtime has no local tokenizer.
func (p Params) OutputBudget(prompt string) int {
	if p.ContextLength <= 0 {
		return p.MaxTokens
	}
	promptTokens := len(prompt)/4 + 1
	budget := p.ContextLength - promptTokens - p.SafetyMargin
	if budget < minOutputTokens {
		budget = minOutputTokens
	}
	if p.MaxTokens > 0 && budget > p.MaxTokens {
		budget = p.MaxTokens
	}
	return budget
}

// ParamsFromConfig maps the configured generation section onto Params.
func ParamsFromConfig(cfg config.GenerationConfig) Params {
	return Params{
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		TopK:          cfg.TopK,
		RepeatPenalty: cfg.RepeatPenalty,
		Mirostat:      cfg.Mirostat,
		MirostatTau:   cfg.MirostatTau,
		MirostatEta:   cfg.MirostatEta,
		MaxTokens:     cfg.MaxTokens,
		ContextLength: cfg.ContextLength,
		SafetyMargin:  cfg.SafetyMargin,
	}
}
