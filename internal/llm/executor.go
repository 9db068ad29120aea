package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/llamalith/llamalith/internal/config"
	"github.com/llamalith/llamalith/pkg/models"
)

// Executor runs generation calls against loaded model handles with the
// configured sampling parameters. It holds no per-job state and is safe to
// share across sequential jobs.
type Executor struct {
	params Params
}

// NewExecutor creates an Executor from the configured generation section.
func NewExecutor(cfg config.GenerationConfig) *Executor {
	return &Executor{params: ParamsFromConfig(cfg)}
}

// Generate renders the prompt transcript and invokes the handle. Any
// failure is wrapped in ErrInference and no output is produced; a result
// string is returned only on full success. A whitespace-only generation
// counts as a failure so blanks are never recorded as results.
func (e *Executor) Generate(ctx context.Context, model Model, systemPrompt string, history []*models.Message) (string, error) {
	prompt := BuildPrompt(systemPrompt, history)

	out, err := model.Complete(ctx, prompt, e.params)
	if err != nil {
		if errors.Is(err, ErrInference) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrInference, err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty model output", ErrInference)
	}
	return out, nil
}
