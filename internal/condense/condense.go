// Package condense turns older chat history into vectorized memory in
// fixed-size floor buckets, keeping a trailing window of recent messages
// verbatim. Runs are fire-and-forget relative to the triggering message but
// strictly sequential across their own buckets.
package condense

import (
	"context"
	"log"
	"sync"

	"github.com/memoria-ai/memoria/internal/chunker"
	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/host"
	"github.com/memoria-ai/memoria/internal/ingest"
	"github.com/memoria-ai/memoria/internal/registry"
)

const (
	DefaultBucketSize     = 100
	DefaultPreserveFloors = 20
)

// ProgressStore persists the per-conversation last processed floor.
type ProgressStore interface {
	Get(ctx context.Context, chatID string) (*domain.CondensationProgress, error)
	Advance(ctx context.Context, chatID string, floor int) error
}

// Ingestor is the ingestion entry point the runner feeds buckets into.
type Ingestor interface {
	Ingest(ctx context.Context, req ingest.Request, progress chan<- ingest.ProgressEvent) (*ingest.Result, error)
}

// Config tunes the condensation runner.
type Config struct {
	Enabled bool
	// BucketSize is the fixed floor-range width; buckets align to absolute
	// multiples of it ([1,100], [101,200], ...).
	BucketSize int
	// PreserveFloors is the trailing window never condensed.
	PreserveFloors int
	// IndependentChatMemory routes condensed buckets into the
	// conversation's own collection instead of a character-local base.
	IndependentChatMemory bool
}

// Runner owns the archiving mutex: at most one condensation run is in
// flight, later triggers while busy are dropped, not queued.
type Runner struct {
	provider host.MessageProvider
	ingestor Ingestor
	progress ProgressStore
	sessions *SessionLock
	cfg      Config
	mu       sync.Mutex
}

func New(provider host.MessageProvider, ingestor Ingestor, progress ProgressStore, sessions *SessionLock, cfg Config) *Runner {
	if cfg.BucketSize <= 0 {
		cfg.BucketSize = DefaultBucketSize
	}
	if cfg.PreserveFloors < 0 {
		cfg.PreserveFloors = DefaultPreserveFloors
	}
	return &Runner{
		provider: provider,
		ingestor: ingestor,
		progress: progress,
		sessions: sessions,
		cfg:      cfg,
	}
}

// OnNewMessage triggers a run in the background. The caller's message flow
// never waits on condensation.
func (r *Runner) OnNewMessage(chatID string) {
	if !r.cfg.Enabled {
		return
	}
	go func() {
		if err := r.Run(context.Background(), chatID); err != nil && err != domain.ErrArchiveInProgress {
			log.Printf("condense: run for chat %s failed: %v", chatID, err)
		}
	}()
}

// Run condenses the unprocessed floors of one conversation. Floors are
// 1-based; end excludes the preserved trailing window. Progress advances
// only after a bucket's ingestion succeeds, and the first failure stops the
// run at the last successful boundary.
func (r *Runner) Run(ctx context.Context, chatID string) error {
	if !r.mu.TryLock() {
		return domain.ErrArchiveInProgress
	}
	defer r.mu.Unlock()

	msgs, err := r.provider.Messages(ctx, chatID)
	if err != nil {
		return err
	}
	character, err := r.provider.CharacterID(ctx, chatID)
	if err != nil {
		return err
	}

	prog, err := r.progress.Get(ctx, chatID)
	if err != nil {
		return err
	}

	start := prog.LastProcessedFloor + 1
	end := len(msgs) - r.cfg.PreserveFloors
	if start > end {
		return nil
	}

	for bucketStart := start; bucketStart <= end; {
		bucketEnd := alignedEnd(bucketStart, r.cfg.BucketSize)
		if bucketEnd > end {
			bucketEnd = end
		}

		req := ingest.Request{
			Owner:       character,
			DisplayName: registry.ChatRangeName(character, bucketStart, bucketEnd),
			Source:      domain.SourceChatHistory,
			Messages:    sliceFloors(msgs, bucketStart, bucketEnd),
		}
		if id, ok := r.sessions.Current(); ok {
			req.CollectionID = id
		} else if r.cfg.IndependentChatMemory {
			req.CollectionID = domain.ScopeChat.CollectionID(chatID, "")
		}

		if _, err := r.ingestor.Ingest(ctx, req, nil); err != nil {
			return err
		}
		if err := r.progress.Advance(ctx, chatID, bucketEnd); err != nil {
			return err
		}
		bucketStart = bucketEnd + 1
	}
	return nil
}

// alignedEnd is the last floor of the absolute bucket containing start.
func alignedEnd(start, size int) int {
	return ((start-1)/size)*size + size
}

func sliceFloors(msgs []host.Message, start, end int) []chunker.ChatMessage {
	out := make([]chunker.ChatMessage, 0, end-start+1)
	for _, m := range msgs {
		if m.Floor < start || m.Floor > end {
			continue
		}
		out = append(out, chunker.ChatMessage{
			Floor:    m.Floor,
			FromUser: m.FromUser,
			Text:     m.Text,
		})
	}
	return out
}
