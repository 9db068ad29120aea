package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/llamalith/llamalith/internal/api/middleware"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	ChatHandler     http.HandlerFunc
	GetJobHandler   http.HandlerFunc
	ListJobsHandler http.HandlerFunc
	ReclaimHandler  http.HandlerFunc

	CreateConversationHandler   http.HandlerFunc
	ListConversationsHandler    http.HandlerFunc
	ConversationMessagesHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", deps.HealthHandler)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/chat", deps.ChatHandler)
		r.Get("/api/v1/jobs/{jobID}", deps.GetJobHandler)
		r.Get("/api/v1/jobs", deps.ListJobsHandler)

		r.Post("/api/v1/conversations", deps.CreateConversationHandler)
		r.Get("/api/v1/conversations", deps.ListConversationsHandler)
		r.Get("/api/v1/conversations/{conversationID}/messages", deps.ConversationMessagesHandler)

		r.Post("/api/v1/admin/jobs/reclaim", deps.ReclaimHandler)
	})

	return r
}
