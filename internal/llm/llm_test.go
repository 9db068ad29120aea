package llm_test

import (
	"strings"
	"testing"

	"github.com/llamalith/llamalith/internal/llm"
	"github.com/stretchr/testify/assert"
)

func TestOutputBudget_ShortPromptCappedAtMaxTokens(t *testing.T) {
	p := llm.Params{MaxTokens: 512, ContextLength: 4096, SafetyMargin: 128}

	assert.Equal(t, 512, p.OutputBudget("hi"))
}

func TestOutputBudget_ShrinksWithPromptLength(t *testing.T) {
	p := llm.Params{MaxTokens: 900, ContextLength: 1024, SafetyMargin: 128}

	// ~501 estimated prompt tokens leave 395 of the window.
	prompt := strings.Repeat("a", 2000)
	assert.Equal(t, 395, p.OutputBudget(prompt))
}

func TestOutputBudget_FloorsNearFullContext(t *testing.T) {
	p := llm.Params{MaxTokens: 512, ContextLength: 1024, SafetyMargin: 128}

	// The prompt estimate alone fills the window; the floor still applies.
	prompt := strings.Repeat("a", 8000)
	assert.Equal(t, 256, p.OutputBudget(prompt))
}

func TestOutputBudget_NoContextLengthUsesMaxTokens(t *testing.T) {
	p := llm.Params{MaxTokens: 512}

	assert.Equal(t, 512, p.OutputBudget(strings.Repeat("a", 100000)))
}
