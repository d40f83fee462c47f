package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Every variant must report the same source through Source() and through the
// flattened map the vector backend stores, including the fail-closed one.
func TestChunkMeta_SourceMatchesMap(t *testing.T) {
	metas := []ChunkMeta{
		ManualMeta{SourceName: "notes", IngestedAt: time.Now(), Part: 1},
		ChatMeta{SourceName: "chat", Floor: 3, FromUser: true, Part: 0},
		LorebookMeta{Book: "world", Entry: "cities", Part: 2},
		NovelMeta{SourceName: "saga", Volume: "I", Chapter: "3", Section: 1},
		UnknownMeta{},
	}

	for _, m := range metas {
		assert.Equal(t, string(m.Source()), m.Map()["source"])
	}
}

func TestUnknownMeta_ReportsUnknownSource(t *testing.T) {
	assert.Equal(t, SourceUnknown, UnknownMeta{}.Source())
	// Unknown is a reporting value only and never passes ingestion validation.
	assert.False(t, IsValidSource(SourceUnknown))
}
