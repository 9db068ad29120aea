package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/llamalith/llamalith/internal/config"
	"github.com/llamalith/llamalith/internal/llm"
	"github.com/llamalith/llamalith/internal/llm/mock"
	"github.com/llamalith/llamalith/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGeneration() config.GenerationConfig {
	return config.GenerationConfig{
		Temperature:   0.7,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
		MaxTokens:     256,
	}
}

func TestGenerate_RendersTranscriptAndParams(t *testing.T) {
	ex := llm.NewExecutor(testGeneration())

	var gotPrompt string
	var gotParams llm.Params
	m := &mock.Model{
		ModelKey: "mistral",
		CompleteFunc: func(_ context.Context, prompt string, params llm.Params) (string, error) {
			gotPrompt = prompt
			gotParams = params
			return "  hi there\n", nil
		},
	}

	history := []*models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "hey"},
		{Role: models.RoleUser, Content: "how are you?"},
	}

	out, err := ex.Generate(context.Background(), m, "be kind", history)
	require.NoError(t, err)
	assert.Equal(t, "hi there", out, "output is whitespace-trimmed")

	assert.True(t, strings.HasPrefix(gotPrompt, "[SYSTEM]\nbe kind\n"))
	assert.Contains(t, gotPrompt, "[USER]\nhello\n")
	assert.Contains(t, gotPrompt, "[ASSISTANT]\nhey\n")
	assert.True(t, strings.HasSuffix(gotPrompt, "[ASSISTANT]\n"), "prompt cues the assistant")

	assert.Equal(t, 0.7, gotParams.Temperature)
	assert.Equal(t, 256, gotParams.MaxTokens)
}

func TestGenerate_EmptySystemPromptOmitted(t *testing.T) {
	ex := llm.NewExecutor(testGeneration())

	var gotPrompt string
	m := &mock.Model{
		CompleteFunc: func(_ context.Context, prompt string, _ llm.Params) (string, error) {
			gotPrompt = prompt
			return "ok", nil
		},
	}

	_, err := ex.Generate(context.Background(), m, "   ", []*models.Message{
		{Role: models.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gotPrompt, "[USER]\n"))
}

func TestGenerate_EmptyOutputFails(t *testing.T) {
	ex := llm.NewExecutor(testGeneration())

	m := &mock.Model{
		CompleteFunc: func(_ context.Context, _ string, _ llm.Params) (string, error) {
			return "   \n\t", nil
		},
	}

	out, err := ex.Generate(context.Background(), m, "", []*models.Message{
		{Role: models.RoleUser, Content: "hi"},
	})
	assert.ErrorIs(t, err, llm.ErrInference)
	assert.ErrorContains(t, err, "empty model output")
	assert.Empty(t, out)
}

func TestGenerate_WrapsFailures(t *testing.T) {
	ex := llm.NewExecutor(testGeneration())

	m := &mock.Model{
		CompleteFunc: func(_ context.Context, _ string, _ llm.Params) (string, error) {
			return "", errors.New("out of context length")
		},
	}

	out, err := ex.Generate(context.Background(), m, "", []*models.Message{
		{Role: models.RoleUser, Content: "hi"},
	})
	assert.ErrorIs(t, err, llm.ErrInference)
	assert.Empty(t, out, "no partial output on failure")
}
