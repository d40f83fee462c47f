package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// settingsRow is the single shared settings document. Writers mutate the
// in-memory copy and save the whole document; last writer wins, matching the
// host-persisted settings model.
const settingsID = "default"

// SettingsRepository stores the registry settings document as one JSONB row.
type SettingsRepository struct {
	db dbtx
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: pool}
}

func NewSettingsRepositoryWithTx(tx pgx.Tx) *SettingsRepository {
	return &SettingsRepository{db: tx}
}

// Load returns the raw settings document, or nil when none has been saved
// yet.
func (r *SettingsRepository) Load(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := r.db.QueryRow(ctx,
		`SELECT doc FROM registry_settings WHERE id = $1`,
		settingsID,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

// Save upserts the whole settings document.
func (r *SettingsRepository) Save(ctx context.Context, doc []byte) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO registry_settings (id, doc, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		settingsID, doc, time.Now().UTC(),
	)
	return err
}
