// Package handler contains the HTTP handlers for the Llamalith API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/llamalith/llamalith/internal/api/response"
	"github.com/llamalith/llamalith/internal/store"
	"github.com/llamalith/llamalith/pkg/models"
)

// ChatStore is the slice of the store the chat handler needs.
type ChatStore interface {
	AddMessage(ctx context.Context, conversationID, role, content string) error
	EnqueueJob(ctx context.Context, req store.EnqueueRequest) (int64, error)
}

// NewChatHandler returns the handler for POST /api/v1/chat. It records the
// user message and enqueues a generation job; workers pick it up from
// there and the client polls the returned job id.
func NewChatHandler(st ChatStore, defaultModelKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ConversationID string `json:"conversation_id"`
			InputText      string `json:"input_text"`
			ModelKey       string `json:"model_key"`
			SystemPrompt   string `json:"system_prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.ConversationID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "conversation_id is required", nil)
			return
		}
		if req.InputText == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "input_text is required", nil)
			return
		}
		if req.ModelKey == "" {
			req.ModelKey = defaultModelKey
		}

		if err := st.AddMessage(r.Context(), req.ConversationID, models.RoleUser, req.InputText); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Could not record message", nil)
			return
		}

		jobID, err := st.EnqueueJob(r.Context(), store.EnqueueRequest{
			ConversationID: req.ConversationID,
			InputText:      req.InputText,
			ModelKey:       req.ModelKey,
			SystemPrompt:   req.SystemPrompt,
		})
		if err != nil {
			response.Error(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Could not enqueue job", nil)
			return
		}

		response.Accepted(w, map[string]any{
			"job_id": jobID,
			"status": models.JobStatusQueued,
		})
	}
}
