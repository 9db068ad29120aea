// Package mock provides llm.Runtime and llm.Model test doubles.
package mock

import (
	"context"
	"sync"

	"github.com/llamalith/llamalith/internal/llm"
)

// Runtime satisfies llm.Runtime for testing. LoadCalls counts loader
// invocations per key, for cache idempotence assertions.
type Runtime struct {
	mu        sync.Mutex
	LoadFunc  func(ctx context.Context, key string) (llm.Model, error)
	loadCalls map[string]int
}

func (r *Runtime) Name() string { return "mock" }

func (r *Runtime) LoadModel(ctx context.Context, key string) (llm.Model, error) {
	r.mu.Lock()
	if r.loadCalls == nil {
		r.loadCalls = make(map[string]int)
	}
	r.loadCalls[key]++
	r.mu.Unlock()

	if r.LoadFunc != nil {
		return r.LoadFunc(ctx, key)
	}
	return &Model{ModelKey: key}, nil
}

// LoadCalls returns how many times key has been loaded.
func (r *Runtime) LoadCalls(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadCalls[key]
}

// Model satisfies llm.Model for testing.
type Model struct {
	ModelKey     string
	CompleteFunc func(ctx context.Context, prompt string, params llm.Params) (string, error)

	mu     sync.Mutex
	closed bool
}

func (m *Model) Key() string { return m.ModelKey }

func (m *Model) Complete(ctx context.Context, prompt string, params llm.Params) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, params)
	}
	return "mock completion", nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called, for eviction tests.
func (m *Model) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// NewRuntime returns a Runtime whose models echo a canned reply.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// NewFailingRuntime returns a Runtime whose LoadModel always fails.
func NewFailingRuntime(err error) *Runtime {
	return &Runtime{
		LoadFunc: func(_ context.Context, _ string) (llm.Model, error) {
			return nil, err
		},
	}
}

var (
	_ llm.Runtime = (*Runtime)(nil)
	_ llm.Model   = (*Model)(nil)
)
