// Package ingest drives chunk → embed → store in strictly sequential
// batches, with resumable per-job checkpoints and cooperative cancellation.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/memoria-ai/memoria/internal/chunker"
	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/embedding"
	"github.com/memoria-ai/memoria/internal/telemetry"
	"github.com/memoria-ai/memoria/internal/vector"
)

// DefaultBatchSize is how many chunks are embedded and inserted per batch.
const DefaultBatchSize = 10

// ProgressEvent reports ingestion progress on the caller's channel.
type ProgressEvent struct {
	Processed int
	Total     int
	Message   string
}

// Registry resolves or creates the target knowledge base by display name.
type Registry interface {
	ResolveOrCreate(ctx context.Context, owner, name string, source domain.Source) (*domain.KnowledgeBase, error)
}

// CheckpointStore persists resumable progress for jobs that carry a job id.
type CheckpointStore interface {
	Upsert(ctx context.Context, cp *domain.IngestCheckpoint) error
	Get(ctx context.Context, jobID string) (*domain.IngestCheckpoint, error)
	Delete(ctx context.Context, jobID string) error
}

// Archiver keeps the raw source text of an ingestion for later
// re-ingestion. Archive failures are logged and never fail the run.
type Archiver interface {
	PutSourceText(ctx context.Context, collectionID string, text string) error
}

// Request describes one ingestion run. Exactly one of Text, Messages or
// Entries is populated depending on Source. A non-empty CollectionID (chat
// scope or an active session lock) bypasses registry resolution.
type Request struct {
	Owner        string                  `json:"owner"`
	DisplayName  string                  `json:"display_name"`
	Source       domain.Source           `json:"source"`
	Text         string                  `json:"text,omitempty"`
	Messages     []chunker.ChatMessage   `json:"messages,omitempty"`
	Entries      []chunker.LorebookEntry `json:"entries,omitempty"`
	CollectionID string                  `json:"collection_id,omitempty"`
	JobID        string                  `json:"job_id,omitempty"`
	ResumeFrom   int                     `json:"resume_from,omitempty"`
}

// Result is the outcome of a successful run.
type Result struct {
	Count        int
	CollectionID string
	Base         *domain.KnowledgeBase
}

// Orchestrator runs ingestion against the vector backend.
type Orchestrator struct {
	registry    Registry
	store       vector.Store
	embedder    embedding.Embedder
	checkpoints CheckpointStore
	archive     Archiver
	chunkOpts   chunker.Options
	batchSize   int
	now         func() time.Time
}

// Config wires an Orchestrator. Archive and Checkpoints may be nil.
type Config struct {
	Registry    Registry
	Store       vector.Store
	Embedder    embedding.Embedder
	Checkpoints CheckpointStore
	Archive     Archiver
	ChunkOpts   chunker.Options
	BatchSize   int
}

func New(cfg Config) *Orchestrator {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	opts := cfg.ChunkOpts
	if opts.ChunkSize <= 0 {
		opts = chunker.DefaultOptions()
	}
	return &Orchestrator{
		registry:    cfg.Registry,
		store:       cfg.Store,
		embedder:    cfg.Embedder,
		checkpoints: cfg.Checkpoints,
		archive:     cfg.Archive,
		chunkOpts:   opts,
		batchSize:   batch,
		now:         time.Now,
	}
}

// Ingest runs one ingestion. Batches are strictly sequential: a batch's
// insert completes and its checkpoint is persisted before the next batch
// starts, which is what makes resumption safe. Progress events are sent
// best-effort on the supplied channel when it is non-nil.
func (o *Orchestrator) Ingest(ctx context.Context, req Request, progress chan<- ProgressEvent) (*Result, error) {
	if req.Source != "" && !domain.IsValidSource(req.Source) {
		return nil, domain.ErrInvalidSource
	}

	collectionID := req.CollectionID
	var base *domain.KnowledgeBase
	if collectionID == "" {
		if req.DisplayName == "" {
			return nil, domain.ErrEmptyBaseName
		}
		var err error
		base, err = o.registry.ResolveOrCreate(ctx, req.Owner, req.DisplayName, req.Source)
		if err != nil {
			return nil, err
		}
		collectionID = base.CollectionID(domain.ScopeLocal)
	}
	if collectionID == "" {
		return nil, domain.ErrMissingCollectionID
	}

	ctx, span := telemetry.StartSpan(ctx, "ingest.run", telemetry.SpanAttributes{
		Owner:        req.Owner,
		CollectionID: collectionID,
		JobID:        req.JobID,
		Operation:    string(req.Source),
	})
	defer span.End()

	chunks := o.chunk(req)
	if len(chunks) == 0 {
		// Nothing to do is success, not an error.
		return &Result{Count: 0, CollectionID: collectionID, Base: base}, nil
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	nonce := o.now().UnixNano()

	for start := req.ResumeFrom; start < len(chunks); start += o.batchSize {
		if err := cancelled(ctx); err != nil {
			return nil, err
		}

		end := start + o.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := o.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, asIngestError(ctx, err)
		}

		items := make([]domain.VectorItem, len(batch))
		for i, c := range batch {
			items[i] = domain.VectorItem{
				Hash:     domain.VectorHash(c.Text, nonce, start+i),
				Text:     c.Text,
				Metadata: c.Meta.Map(),
				Vector:   vectors[i],
			}
		}

		if err := cancelled(ctx); err != nil {
			return nil, err
		}
		if err := o.store.Insert(ctx, collectionID, items); err != nil {
			return nil, asIngestError(ctx, err)
		}

		if req.JobID != "" && o.checkpoints != nil {
			cp := &domain.IngestCheckpoint{
				JobID:          req.JobID,
				CollectionID:   collectionID,
				ProcessedIndex: end,
				Total:          len(chunks),
				Payload:        payload,
			}
			if err := o.checkpoints.Upsert(ctx, cp); err != nil {
				return nil, err
			}
		}

		send(progress, ProgressEvent{
			Processed: end,
			Total:     len(chunks),
			Message:   fmt.Sprintf("ingested %d/%d chunks", end, len(chunks)),
		})
	}

	if req.JobID != "" && o.checkpoints != nil {
		if err := o.checkpoints.Delete(ctx, req.JobID); err != nil {
			return nil, err
		}
	}

	if o.archive != nil && req.Text != "" {
		if err := o.archive.PutSourceText(ctx, collectionID, req.Text); err != nil {
			log.Printf("ingest: source archive failed for %s: %v", collectionID, err)
		}
	}

	return &Result{Count: len(chunks), CollectionID: collectionID, Base: base}, nil
}

// Resume re-runs a checkpointed job from its first unprocessed batch.
func (o *Orchestrator) Resume(ctx context.Context, cp *domain.IngestCheckpoint) (*Result, error) {
	var req Request
	if err := json.Unmarshal(cp.Payload, &req); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternal, "corrupt checkpoint payload", err)
	}
	req.JobID = cp.JobID
	req.ResumeFrom = cp.ProcessedIndex
	return o.Ingest(ctx, req, nil)
}

func (o *Orchestrator) chunk(req Request) []domain.Chunk {
	switch req.Source {
	case domain.SourceChatHistory:
		return chunker.ChatHistory(req.Messages, req.DisplayName, o.chunkOpts)
	case domain.SourceLorebook:
		return chunker.Lorebook(req.Entries, o.chunkOpts)
	case domain.SourceNovel:
		return chunker.Novel(req.Text, req.DisplayName, o.chunkOpts)
	default:
		return chunker.Manual(req.Text, req.DisplayName, o.now().UTC(), o.chunkOpts)
	}
}

// cancelled surfaces a context abort as the cancellation error class, which
// callers must not report as a backend failure.
func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeCancelled, "ingestion cancelled", err)
	}
	return nil
}

// asIngestError keeps cancellation distinguishable even when it surfaces
// through a network call instead of the pre-call check.
func asIngestError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeCancelled, "ingestion cancelled", err)
	}
	return err
}

func send(ch chan<- ProgressEvent, ev ProgressEvent) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}
