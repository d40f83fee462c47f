package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memoria-ai/memoria/internal/domain"
)

// CondensationRepository persists per-conversation condensation progress.
type CondensationRepository struct {
	db dbtx
}

func NewCondensationRepository(pool *pgxpool.Pool) *CondensationRepository {
	return &CondensationRepository{db: pool}
}

func NewCondensationRepositoryWithTx(tx pgx.Tx) *CondensationRepository {
	return &CondensationRepository{db: tx}
}

// Get returns the progress for a conversation, with floor 0 when none is
// recorded yet.
func (r *CondensationRepository) Get(ctx context.Context, chatID string) (*domain.CondensationProgress, error) {
	var p domain.CondensationProgress
	err := r.db.QueryRow(ctx,
		`SELECT chat_id, last_floor, updated_at FROM condensation_progress WHERE chat_id = $1`,
		chatID,
	).Scan(&p.ChatID, &p.LastProcessedFloor, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.CondensationProgress{ChatID: chatID}, nil
		}
		return nil, err
	}
	return &p, nil
}

// Advance moves the floor forward. The guard in SQL keeps progress monotonic
// even if two writers race: a lower floor never overwrites a higher one.
func (r *CondensationRepository) Advance(ctx context.Context, chatID string, floor int) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO condensation_progress (chat_id, last_floor, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (chat_id) DO UPDATE
		 SET last_floor = EXCLUDED.last_floor, updated_at = EXCLUDED.updated_at
		 WHERE condensation_progress.last_floor < EXCLUDED.last_floor`,
		chatID, floor,
	)
	return err
}
