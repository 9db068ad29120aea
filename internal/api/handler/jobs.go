package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/llamalith/llamalith/internal/api/response"
	"github.com/llamalith/llamalith/internal/cache"
	"github.com/llamalith/llamalith/internal/store"
	"github.com/llamalith/llamalith/pkg/models"
)

// JobStore is the slice of the store the job handlers need.
type JobStore interface {
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, error)
	ReclaimStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

var validStatuses = map[string]bool{
	models.JobStatusQueued:     true,
	models.JobStatusProcessing: true,
	models.JobStatusDone:       true,
	models.JobStatusError:      true,
}

// NewGetJobHandler returns the handler for GET /api/v1/jobs/{jobID}.
// Workers mirror status transitions into Redis; while a job is still in
// flight the mirror answers the poll without a database read. Terminal
// statuses always come from the store so the result travels with them.
func NewGetJobHandler(st JobStore, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Job id must be an integer", nil)
			return
		}

		if ca != nil {
			status, ok, err := ca.GetJobStatus(r.Context(), jobID)
			if err == nil && ok && !models.TerminalStatus(status) {
				response.JSON(w, map[string]any{"id": jobID, "status": status})
				return
			}
		}

		job, err := st.GetJob(r.Context(), jobID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
			return
		}
		response.JSON(w, job)
	}
}

// NewListJobsHandler returns the handler for GET /api/v1/jobs.
func NewListJobsHandler(st JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		status := q.Get("status")
		if status != "" && !validStatuses[status] {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be one of queued, processing, done, error", nil)
			return
		}

		limit := 0
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
				return
			}
			limit = n
		}

		jobs, err := st.ListJobs(r.Context(), store.JobFilter{
			ConversationID: q.Get("conversation_id"),
			Status:         status,
			Limit:          limit,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list jobs", nil)
			return
		}
		if jobs == nil {
			jobs = []*models.Job{}
		}
		response.JSON(w, jobs)
	}
}

// NewReclaimHandler returns the handler for POST /api/v1/admin/jobs/reclaim,
// the external sweep that requeues jobs orphaned by crashed workers.
func NewReclaimHandler(st JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := struct {
			OlderThanSecs int `json:"older_than_secs"`
		}{OlderThanSecs: 900}

		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
				return
			}
		}
		if req.OlderThanSecs <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "older_than_secs must be positive", nil)
			return
		}

		count, err := st.ReclaimStaleJobs(r.Context(), time.Duration(req.OlderThanSecs)*time.Second)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to reclaim jobs", nil)
			return
		}
		response.JSON(w, map[string]any{"reclaimed": count})
	}
}
