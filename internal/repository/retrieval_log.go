package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memoria-ai/memoria/internal/pagination"
)

// RetrievalLogEntry records one retrieval request for later inspection.
type RetrievalLogEntry struct {
	ID         string
	Query      string
	BaseCount  int
	HitCount   int
	Reranked   bool
	DurationMS int64
	CreatedAt  time.Time
}

// RetrievalLogRepository appends and reads the retrieval log.
type RetrievalLogRepository struct {
	db dbtx
}

func NewRetrievalLogRepository(pool *pgxpool.Pool) *RetrievalLogRepository {
	return &RetrievalLogRepository{db: pool}
}

func (r *RetrievalLogRepository) Insert(ctx context.Context, e *RetrievalLogEntry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO retrieval_log (id, query, base_count, hit_count, reranked, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Query, e.BaseCount, e.HitCount, e.Reranked, e.DurationMS, e.CreatedAt,
	)
	return err
}

func (r *RetrievalLogRepository) Recent(ctx context.Context, limit int) ([]*RetrievalLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, query, base_count, hit_count, reranked, duration_ms, created_at
		 FROM retrieval_log ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RetrievalLogEntry
	for rows.Next() {
		var e RetrievalLogEntry
		if err := rows.Scan(&e.ID, &e.Query, &e.BaseCount, &e.HitCount, &e.Reranked, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Page walks the log newest-first with a keyset cursor over
// (created_at, id).
func (r *RetrievalLogRepository) Page(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*RetrievalLogEntry], error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, query, base_count, hit_count, reranked, duration_ms, created_at
	          FROM retrieval_log`
	args := []interface{}{}
	if cursor != nil {
		query += ` WHERE (created_at, id) < ($1, $2)`
		args = append(args, cursor.Timestamp, cursor.LastID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*RetrievalLogEntry
	for rows.Next() {
		var e RetrievalLogEntry
		if err := rows.Scan(&e.ID, &e.Query, &e.BaseCount, &e.HitCount, &e.Reranked, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &pagination.PageResult[*RetrievalLogEntry]{Items: entries}
	if len(entries) > limit {
		page.Items = entries[:limit]
		page.HasMore = true
		last := page.Items[limit-1]
		page.Cursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}
	return page, nil
}
