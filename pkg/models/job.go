package models

import "time"

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusError      = "error"
)

// Job is one queued generation request. The API returns a job id on
// POST /api/v1/chat; the client polls GET /api/v1/jobs/{id} until the
// status is done or error. Ids are assigned by the store and never reused.
type Job struct {
	ID             int64      `db:"id"              json:"id"`
	ConversationID string     `db:"conversation_id" json:"conversation_id"`
	InputText      string     `db:"input_text"      json:"input_text"`
	ModelKey       string     `db:"model_key"       json:"model_key"`
	SystemPrompt   string     `db:"system_prompt"   json:"system_prompt,omitempty"`
	Status         string     `db:"status"          json:"status"`
	Result         *string    `db:"result"          json:"result,omitempty"`
	ErrorMessage   *string    `db:"error_message"   json:"error_message,omitempty"`
	WorkerOwner    *string    `db:"worker_owner"    json:"worker_owner,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	ClaimedAt      *time.Time `db:"claimed_at"      json:"claimed_at,omitempty"`
	ProcessedAt    *time.Time `db:"processed_at"    json:"processed_at,omitempty"`
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool {
	return TerminalStatus(j.Status)
}

// TerminalStatus reports whether status names a final state.
func TerminalStatus(status string) bool {
	return status == JobStatusDone || status == JobStatusError
}
