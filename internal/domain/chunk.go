package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Chunk is one tag-wrapped window of source text, immutable once produced.
type Chunk struct {
	Text string
	Meta ChunkMeta
}

// VectorItem is the unit handed to the vector backend. Hash is a storage
// identity key, not a stable content hash: the nonce folds in the ingestion
// timestamp and chunk index so that re-ingesting the same text never collides
// with an earlier run.
type VectorItem struct {
	Hash     string
	Text     string
	Metadata map[string]any
	Vector   []float32
}

// VectorHash derives the storage identity key for one chunk.
func VectorHash(text string, nonce int64, index int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%d", text, nonce, index))
	return hex.EncodeToString(sum[:])
}
