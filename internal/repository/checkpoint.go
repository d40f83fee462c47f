package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memoria-ai/memoria/internal/domain"
)

// CheckpointRepository persists per-job ingestion progress. A checkpoint
// exists only while a run is incomplete; completion deletes it.
type CheckpointRepository struct {
	db dbtx
}

func NewCheckpointRepository(pool *pgxpool.Pool) *CheckpointRepository {
	return &CheckpointRepository{db: pool}
}

func NewCheckpointRepositoryWithTx(tx pgx.Tx) *CheckpointRepository {
	return &CheckpointRepository{db: tx}
}

// Upsert records progress after a successful batch.
func (r *CheckpointRepository) Upsert(ctx context.Context, cp *domain.IngestCheckpoint) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ingest_checkpoints (job_id, collection_id, processed_index, total, payload, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (job_id) DO UPDATE
		 SET processed_index = EXCLUDED.processed_index,
		     total = EXCLUDED.total,
		     updated_at = EXCLUDED.updated_at`,
		cp.JobID, cp.CollectionID, cp.ProcessedIndex, cp.Total, cp.Payload, time.Now().UTC(),
	)
	return err
}

// Get returns the checkpoint for one job.
func (r *CheckpointRepository) Get(ctx context.Context, jobID string) (*domain.IngestCheckpoint, error) {
	var cp domain.IngestCheckpoint
	err := r.db.QueryRow(ctx,
		`SELECT job_id, collection_id, processed_index, total, payload, updated_at
		 FROM ingest_checkpoints WHERE job_id = $1`,
		jobID,
	).Scan(&cp.JobID, &cp.CollectionID, &cp.ProcessedIndex, &cp.Total, &cp.Payload, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, err
	}
	return &cp, nil
}

// Delete clears a job's checkpoint on completion.
func (r *CheckpointRepository) Delete(ctx context.Context, jobID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM ingest_checkpoints WHERE job_id = $1`, jobID)
	return err
}

// ListResumable returns incomplete checkpoints that have not advanced since
// the cutoff, oldest first. The resume worker picks these up.
func (r *CheckpointRepository) ListResumable(ctx context.Context, cutoff time.Time, limit int) ([]*domain.IngestCheckpoint, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT job_id, collection_id, processed_index, total, payload, updated_at
		 FROM ingest_checkpoints
		 WHERE processed_index < total AND updated_at < $1
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.IngestCheckpoint
	for rows.Next() {
		var cp domain.IngestCheckpoint
		if err := rows.Scan(&cp.JobID, &cp.CollectionID, &cp.ProcessedIndex, &cp.Total, &cp.Payload, &cp.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &cp)
	}
	return out, rows.Err()
}
