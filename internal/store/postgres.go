package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/llamalith/llamalith/pkg/models"
)

const jobFields = `id, conversation_id, input_text, model_key, system_prompt,
	status, result, error_message, worker_owner, created_at, claimed_at, processed_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

func (s *PostgresStore) EnqueueJob(ctx context.Context, req EnqueueRequest) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (conversation_id, input_text, model_key, system_prompt, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		req.ConversationID, req.InputText, req.ModelKey, req.SystemPrompt,
		models.JobStatusQueued,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// ClaimNextJob selects the oldest queued job and transitions it to
// processing in one statement. SKIP LOCKED keeps concurrent claimers from
// blocking on each other; the trailing status guard makes the update a
// no-op if the row changed between the select and the update.
func (s *PostgresStore) ClaimNextJob(ctx context.Context, workerOwner string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`WITH next_job AS (
			SELECT id FROM jobs
			WHERE status = $2
			ORDER BY id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 UPDATE jobs
		 SET status = $3, claimed_at = NOW(), worker_owner = $1
		 FROM next_job
		 WHERE jobs.id = next_job.id AND jobs.status = $2
		 RETURNING %s`, qualifiedJobFields("jobs")),
		workerOwner, models.JobStatusQueued, models.JobStatusProcessing)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id int64, result string) error {
	return s.finishJob(ctx, id,
		`UPDATE jobs SET status = $2, result = $3, processed_at = NOW()
		 WHERE id = $1 AND status = $4`,
		models.JobStatusDone, result)
}

func (s *PostgresStore) FailJob(ctx context.Context, id int64, errorMessage string) error {
	return s.finishJob(ctx, id,
		`UPDATE jobs SET status = $2, error_message = $3, processed_at = NOW()
		 WHERE id = $1 AND status = $4`,
		models.JobStatusError, errorMessage)
}

// finishJob runs a guarded terminal transition. Zero rows affected means
// the job either does not exist or is not processing; the follow-up read
// distinguishes the two.
func (s *PostgresStore) finishJob(ctx context.Context, id int64, query, status, payload string) error {
	tag, err := s.pool.Exec(ctx, query, id, status, payload, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("finish job %d: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job %d status: %w", id, err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

func (s *PostgresStore) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobFields+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.ConversationID != "" {
		conditions = append(conditions, fmt.Sprintf("conversation_id = $%d", argIdx))
		args = append(args, filter.ConversationID)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf(
		`SELECT %s FROM jobs WHERE %s ORDER BY id DESC LIMIT $%d`,
		jobFields, strings.Join(conditions, " AND "), argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ReclaimStaleJobs resets processing jobs whose claim predates the cutoff
// back to queued. A stale claim means its worker most likely died mid-job;
// the reset makes the job claimable again by any live worker.
func (s *PostgresStore) ReclaimStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET status = $1, worker_owner = NULL, claimed_at = NULL
		 WHERE status = $2 AND claimed_at < NOW() - $3::interval`,
		models.JobStatusQueued, models.JobStatusProcessing, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Conversations ---

func (s *PostgresStore) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	c := &models.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, title, created_at) VALUES ($1, $2, $3)`,
		c.ID, c.Title, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context) ([]*models.Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, created_at FROM conversations ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, &c)
	}
	return conversations, rows.Err()
}

func (s *PostgresStore) AddMessage(ctx context.Context, conversationID, role, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (conversation_id, role, content) VALUES ($1, $2, $3)`,
		conversationID, role, content)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ConversationMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY id ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// --- helpers ---

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.ConversationID, &j.InputText, &j.ModelKey,
		&j.SystemPrompt, &j.Status, &j.Result, &j.ErrorMessage, &j.WorkerOwner,
		&j.CreatedAt, &j.ClaimedAt, &j.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// qualifiedJobFields prefixes each job column with the given table alias,
// needed when UPDATE ... FROM makes bare column names ambiguous.
func qualifiedJobFields(table string) string {
	cols := strings.Split(jobFields, ",")
	for i, c := range cols {
		cols[i] = table + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
