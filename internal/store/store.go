package store

import (
	"context"
	"errors"
	"time"

	"github.com/llamalith/llamalith/pkg/models"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("resource not found")

// ErrNoJob is returned by ClaimNextJob when no queued job is available.
var ErrNoJob = errors.New("no queued job available")

// ErrInvalidTransition indicates a status mutation was attempted on a job
// that is not in the expected prior state. It points at a logic bug or a
// race the atomic claim should have prevented; callers log it rather than
// surfacing it to clients.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
//
// ClaimNextJob is the one correctness-critical operation: implementations
// must transition the oldest queued job to processing in a single atomic
// conditional update so that no two concurrent callers, in the same process
// or not, ever claim the same job.
type Store interface {
	Ping(ctx context.Context) error

	EnqueueJob(ctx context.Context, req EnqueueRequest) (int64, error)
	ClaimNextJob(ctx context.Context, workerOwner string) (*models.Job, error)
	CompleteJob(ctx context.Context, id int64, result string) error
	FailJob(ctx context.Context, id int64, errorMessage string) error
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error)
	ReclaimStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error)

	CreateConversation(ctx context.Context, title string) (*models.Conversation, error)
	ListConversations(ctx context.Context) ([]*models.Conversation, error)
	AddMessage(ctx context.Context, conversationID, role, content string) error
	ConversationMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
}

// EnqueueRequest carries the immutable fields of a new job.
type EnqueueRequest struct {
	ConversationID string
	InputText      string
	ModelKey       string
	SystemPrompt   string
}

// JobFilter narrows ListJobs. Zero values mean "no filter". Results are
// ordered newest first and capped at Limit (default 20, max 100).
type JobFilter struct {
	ConversationID string
	Status         string
	Limit          int
}
