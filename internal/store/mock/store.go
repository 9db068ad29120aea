// Package mock provides an in-memory Store for tests. Claim semantics
// match the Postgres implementation: a single guarded compare-and-set
// under one lock, so concurrent claimers never receive the same job.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/llamalith/llamalith/internal/store"
	"github.com/llamalith/llamalith/pkg/models"
)

// Store satisfies store.Store with map-backed tables.
type Store struct {
	mu            sync.Mutex
	nextJobID     int64
	nextMessageID int64
	jobs          map[int64]*models.Job
	conversations map[string]*models.Conversation
	messages      []*models.Message

	// PingErr, when set, is returned by Ping and every job operation,
	// simulating an unreachable database.
	PingErr error
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		jobs:          make(map[int64]*models.Job),
		conversations: make(map[string]*models.Conversation),
	}
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PingErr
}

func (s *Store) EnqueueJob(_ context.Context, req store.EnqueueRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PingErr != nil {
		return 0, s.PingErr
	}

	s.nextJobID++
	job := &models.Job{
		ID:             s.nextJobID,
		ConversationID: req.ConversationID,
		InputText:      req.InputText,
		ModelKey:       req.ModelKey,
		SystemPrompt:   req.SystemPrompt,
		Status:         models.JobStatusQueued,
		CreatedAt:      time.Now().UTC(),
	}
	s.jobs[job.ID] = job
	return job.ID, nil
}

func (s *Store) ClaimNextJob(_ context.Context, workerOwner string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PingErr != nil {
		return nil, s.PingErr
	}

	var oldest *models.Job
	for _, j := range s.jobs {
		if j.Status != models.JobStatusQueued {
			continue
		}
		if oldest == nil || j.ID < oldest.ID {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, store.ErrNoJob
	}

	now := time.Now().UTC()
	owner := workerOwner
	oldest.Status = models.JobStatusProcessing
	oldest.ClaimedAt = &now
	oldest.WorkerOwner = &owner
	return copyJob(oldest), nil
}

func (s *Store) CompleteJob(_ context.Context, id int64, result string) error {
	return s.finishJob(id, models.JobStatusDone, result)
}

func (s *Store) FailJob(_ context.Context, id int64, errorMessage string) error {
	return s.finishJob(id, models.JobStatusError, errorMessage)
}

func (s *Store) finishJob(id int64, status, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PingErr != nil {
		return s.PingErr
	}

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if job.Status != models.JobStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, job.Status, status)
	}

	now := time.Now().UTC()
	job.Status = status
	job.ProcessedAt = &now
	if status == models.JobStatusDone {
		job.Result = &payload
	} else {
		job.ErrorMessage = &payload
	}
	return nil
}

func (s *Store) GetJob(_ context.Context, id int64) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PingErr != nil {
		return nil, s.PingErr
	}

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyJob(job), nil
}

func (s *Store) ListJobs(_ context.Context, filter store.JobFilter) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PingErr != nil {
		return nil, s.PingErr
	}

	var jobs []*models.Job
	for _, j := range s.jobs {
		if filter.ConversationID != "" && j.ConversationID != filter.ConversationID {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		jobs = append(jobs, copyJob(j))
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID > jobs[k].ID })

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *Store) ReclaimStaleJobs(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PingErr != nil {
		return 0, s.PingErr
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	var count int64
	for _, j := range s.jobs {
		if j.Status != models.JobStatusProcessing || j.ClaimedAt == nil {
			continue
		}
		if j.ClaimedAt.Before(cutoff) {
			j.Status = models.JobStatusQueued
			j.ClaimedAt = nil
			j.WorkerOwner = nil
			count++
		}
	}
	return count, nil
}

func (s *Store) CreateConversation(_ context.Context, title string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &models.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	s.conversations[c.ID] = c
	return c, nil
}

func (s *Store) ListConversations(context.Context) ([]*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Conversation
	for _, c := range s.conversations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (s *Store) AddMessage(_ context.Context, conversationID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMessageID++
	s.messages = append(s.messages, &models.Message{
		ID:             s.nextMessageID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	})
	return nil
}

func (s *Store) ConversationMessages(_ context.Context, conversationID string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

// SetPingErr flips the simulated outage on or off. Safe to call while
// workers are running against the store.
func (s *Store) SetPingErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PingErr = err
}

// BackdateClaim rewrites a job's claimed_at, for staleness tests.
func (s *Store) BackdateClaim(id int64, claimedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.ClaimedAt = &claimedAt
	}
}

func copyJob(j *models.Job) *models.Job {
	out := *j
	return &out
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)
