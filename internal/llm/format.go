package llm

import (
	"strings"

	"github.com/llamalith/llamalith/pkg/models"
)

// Role markers in the rendered transcript. They double as stop sequences
// so the model cannot speak for the user.
const (
	systemMarker    = "[SYSTEM]"
	userMarker      = "[USER]"
	assistantMarker = "[ASSISTANT]"
)

// StopSequences returns the markers generation must halt at.
func StopSequences() []string {
	return []string{userMarker, systemMarker, assistantMarker}
}

// BuildPrompt renders a conversation history into the flat transcript the
// runtime consumes. The system prompt, when non-empty, leads; the trailing
// assistant marker cues the model to respond.
func BuildPrompt(systemPrompt string, history []*models.Message) string {
	var b strings.Builder
	if s := strings.TrimSpace(systemPrompt); s != "" {
		b.WriteString(systemMarker + "\n" + s + "\n")
	}
	for _, m := range history {
		switch m.Role {
		case models.RoleSystem:
			b.WriteString(systemMarker)
		case models.RoleAssistant:
			b.WriteString(assistantMarker)
		default:
			b.WriteString(userMarker)
		}
		b.WriteString("\n" + m.Content + "\n")
	}
	b.WriteString(assistantMarker + "\n")
	return b.String()
}
