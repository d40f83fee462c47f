// Package vector defines the contract with the vector storage backend and
// its client implementations. Collections are addressed purely by the
// collection id derived from a knowledge base's ownership scope.
package vector

import (
	"context"

	"github.com/memoria-ai/memoria/internal/domain"
)

// RawHit is one raw similarity hit as returned by the backend, before any
// deduplication, metadata recovery or re-ranking.
type RawHit struct {
	Hash     string         `json:"hash"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// QueryInput describes one collection query. The embedding is computed once
// by the caller and shared across collections.
type QueryInput struct {
	CollectionID string
	SearchText   string
	Embedding    []float32
	TopK         int
	Threshold    float64
}

// Store is the vector backend contract. A missing collection is never an
// error: queries return no hits and List returns no hashes.
type Store interface {
	Insert(ctx context.Context, collectionID string, items []domain.VectorItem) error
	Query(ctx context.Context, in QueryInput) ([]RawHit, error)
	Purge(ctx context.Context, collectionID string) error
	List(ctx context.Context, collectionID string) ([]string, error)
}
