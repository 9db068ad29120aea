package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/llamalith/llamalith/internal/api/response"
	"github.com/llamalith/llamalith/pkg/models"
)

// ConversationStore is the slice of the store the conversation handlers need.
type ConversationStore interface {
	CreateConversation(ctx context.Context, title string) (*models.Conversation, error)
	ListConversations(ctx context.Context) ([]*models.Conversation, error)
	ConversationMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
}

// NewCreateConversationHandler returns the handler for POST /api/v1/conversations.
func NewCreateConversationHandler(st ConversationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title string `json:"title"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
				return
			}
		}

		conversation, err := st.CreateConversation(r.Context(), req.Title)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create conversation", nil)
			return
		}
		response.Created(w, conversation)
	}
}

// NewListConversationsHandler returns the handler for GET /api/v1/conversations.
func NewListConversationsHandler(st ConversationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversations, err := st.ListConversations(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list conversations", nil)
			return
		}
		if conversations == nil {
			conversations = []*models.Conversation{}
		}
		response.JSON(w, conversations)
	}
}

// NewConversationMessagesHandler returns the handler for
// GET /api/v1/conversations/{conversationID}/messages.
func NewConversationMessagesHandler(st ConversationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := chi.URLParam(r, "conversationID")
		if conversationID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "conversation id is required", nil)
			return
		}

		messages, err := st.ConversationMessages(r.Context(), conversationID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load messages", nil)
			return
		}
		if messages == nil {
			messages = []*models.Message{}
		}
		response.JSON(w, messages)
	}
}
