package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/vector"
)

// PgVectorStore implements vector.Store on Postgres with pgvector, for
// self-hosted deployments that run without an external vector backend.
type PgVectorStore struct {
	db dbtx
}

func NewPgVectorStore(pool *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{db: pool}
}

func (s *PgVectorStore) Insert(ctx context.Context, collectionID string, items []domain.VectorItem) error {
	if collectionID == "" {
		return domain.ErrMissingCollectionID
	}
	for _, item := range items {
		meta, err := json.Marshal(item.Metadata)
		if err != nil {
			return err
		}
		_, err = s.db.Exec(ctx,
			`INSERT INTO memory_vectors (collection_id, hash, content, metadata, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, now())
			 ON CONFLICT (collection_id, hash) DO NOTHING`,
			collectionID, item.Hash, item.Text, meta, pgvector.NewVector(item.Vector),
		)
		if err != nil {
			return domain.NewDomainErrorWithCause(domain.ErrCodeBackend, "vector insert failed", err)
		}
	}
	return nil
}

func (s *PgVectorStore) Query(ctx context.Context, in vector.QueryInput) ([]vector.RawHit, error) {
	if in.CollectionID == "" {
		return nil, domain.ErrMissingCollectionID
	}
	topK := in.TopK
	if topK <= 0 {
		topK = 10
	}

	// Cosine distance; similarity = 1 - distance.
	rows, err := s.db.Query(ctx,
		`SELECT hash, content, metadata, 1 - (embedding <=> $2) AS score
		 FROM memory_vectors
		 WHERE collection_id = $1 AND 1 - (embedding <=> $2) >= $3
		 ORDER BY embedding <=> $2
		 LIMIT $4`,
		in.CollectionID, pgvector.NewVector(in.Embedding), in.Threshold, topK,
	)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeBackend, "vector query failed", err)
	}
	defer rows.Close()

	var hits []vector.RawHit
	for rows.Next() {
		var h vector.RawHit
		var meta []byte
		if err := rows.Scan(&h.Hash, &h.Text, &meta, &h.Score); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &h.Metadata)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PgVectorStore) Purge(ctx context.Context, collectionID string) error {
	if collectionID == "" {
		return domain.ErrMissingCollectionID
	}
	_, err := s.db.Exec(ctx, `DELETE FROM memory_vectors WHERE collection_id = $1`, collectionID)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeBackend, "vector purge failed", err)
	}
	return nil
}

func (s *PgVectorStore) List(ctx context.Context, collectionID string) ([]string, error) {
	if collectionID == "" {
		return nil, domain.ErrMissingCollectionID
	}
	rows, err := s.db.Query(ctx, `SELECT hash FROM memory_vectors WHERE collection_id = $1`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}
