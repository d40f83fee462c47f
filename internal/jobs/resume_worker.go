package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/ingest"
)

const (
	// DefaultStaleAfter is how long a checkpoint must sit untouched before
	// the worker considers its job abandoned and resumes it.
	DefaultStaleAfter = 2 * time.Minute

	// DefaultResumeBatch caps the checkpoints claimed per poll.
	DefaultResumeBatch = 10
)

// CheckpointLister pages through stale, incomplete ingestion checkpoints.
type CheckpointLister interface {
	ListResumable(ctx context.Context, cutoff time.Time, limit int) ([]*domain.IngestCheckpoint, error)
}

// Resumer re-runs one checkpointed ingestion from its last persisted batch.
type Resumer interface {
	Resume(ctx context.Context, cp *domain.IngestCheckpoint) (*ingest.Result, error)
}

// ResumeWorker finds ingestion jobs that died mid-run and drives them to
// completion. It implements JobProcessor for the polling Worker.
type ResumeWorker struct {
	checkpoints CheckpointLister
	resumer     Resumer
	staleAfter  time.Duration
	batch       int
}

func NewResumeWorker(checkpoints CheckpointLister, resumer Resumer) *ResumeWorker {
	return &ResumeWorker{
		checkpoints: checkpoints,
		resumer:     resumer,
		staleAfter:  DefaultStaleAfter,
		batch:       DefaultResumeBatch,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *ResumeWorker) ProcessJobs(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-w.staleAfter)
	stale, err := w.checkpoints.ListResumable(ctx, cutoff, w.batch)
	if err != nil {
		return fmt.Errorf("failed to list resumable checkpoints: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	log.Printf("Resuming %d interrupted ingestion jobs", len(stale))

	for _, cp := range stale {
		if err := w.resumeJob(ctx, cp); err != nil {
			log.Printf("Error resuming job %s: %v", cp.JobID, err)
		}
	}
	return nil
}

func (w *ResumeWorker) resumeJob(ctx context.Context, cp *domain.IngestCheckpoint) error {
	log.Printf("Resuming job %s for collection %s at chunk %d/%d",
		cp.JobID, cp.CollectionID, cp.ProcessedIndex, cp.Total)

	res, err := w.resumer.Resume(ctx, cp)
	if err != nil {
		var derr *domain.DomainError
		if errors.As(err, &derr) && derr.Code == domain.ErrCodeCancelled {
			// Shutdown mid-resume leaves the checkpoint for the next poll.
			return nil
		}
		return err
	}

	log.Printf("Job %s completed: %d chunks in %s", cp.JobID, res.Count, res.CollectionID)
	return nil
}
