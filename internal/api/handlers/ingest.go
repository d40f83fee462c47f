package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/memoria-ai/memoria/internal/api"
	"github.com/memoria-ai/memoria/internal/chunker"
	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/ingest"
)

type IngestService interface {
	Ingest(ctx context.Context, req ingest.Request, progress chan<- ingest.ProgressEvent) (*ingest.Result, error)
}

type JobManager interface {
	Start(req ingest.Request) string
	Status(jobID string) (*ingest.JobStatus, error)
}

// CheckpointReader answers status polls for jobs that outlived this process
// and are waiting on the resume worker.
type CheckpointReader interface {
	Get(ctx context.Context, jobID string) (*domain.IngestCheckpoint, error)
}

type IngestHandler struct {
	svc         IngestService
	jobs        JobManager
	checkpoints CheckpointReader
	sessions    SessionPin
}

func NewIngestHandler(svc IngestService, jobs JobManager, checkpoints CheckpointReader, sessions SessionPin) *IngestHandler {
	return &IngestHandler{svc: svc, jobs: jobs, checkpoints: checkpoints, sessions: sessions}
}

type IngestRequest struct {
	Owner        string                  `json:"owner"`
	Name         string                  `json:"name"`
	Source       string                  `json:"source"`
	Text         string                  `json:"text,omitempty"`
	Messages     []chunker.ChatMessage   `json:"messages,omitempty"`
	Entries      []chunker.LorebookEntry `json:"entries,omitempty"`
	CollectionID string                  `json:"collection_id,omitempty"`
	Async        bool                    `json:"async,omitempty"`
}

type IngestResponse struct {
	Count        int    `json:"count"`
	CollectionID string `json:"collection_id"`
}

type IngestAcceptedResponse struct {
	JobID string `json:"job_id"`
}

// Ingest runs synchronously by default; async=true detaches the run and
// returns 202 with a job id pollable at /jobs/{id}.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Source != "" && !domain.IsValidSource(domain.Source(req.Source)) {
		api.Error(w, http.StatusBadRequest, "invalid source")
		return
	}

	run := ingest.Request{
		Owner:        req.Owner,
		DisplayName:  req.Name,
		Source:       domain.Source(req.Source),
		Text:         req.Text,
		Messages:     req.Messages,
		Entries:      req.Entries,
		CollectionID: req.CollectionID,
	}
	// An active session lock overrides scope resolution.
	if run.CollectionID == "" {
		if id, ok := h.sessions.Current(); ok {
			run.CollectionID = id
		}
	}

	if req.Async {
		jobID := h.jobs.Start(run)
		api.Success(w, http.StatusAccepted, IngestAcceptedResponse{JobID: jobID})
		return
	}

	res, err := h.svc.Ingest(r.Context(), run, nil)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, IngestResponse{Count: res.Count, CollectionID: res.CollectionID})
}

// JobStatus reports an async job. In-memory state wins; a checkpoint row
// covers jobs from a previous process that the resume worker will pick up.
func (h *IngestHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	status, err := h.jobs.Status(jobID)
	if err == nil {
		api.Success(w, http.StatusOK, status)
		return
	}
	if !errors.Is(err, domain.ErrJobNotFound) {
		api.HandleError(w, err)
		return
	}

	cp, err := h.checkpoints.Get(r.Context(), jobID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, &ingest.JobStatus{
		JobID:        cp.JobID,
		State:        ingest.JobRunning,
		Processed:    cp.ProcessedIndex,
		Total:        cp.Total,
		CollectionID: cp.CollectionID,
	})
}
