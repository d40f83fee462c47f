// Package query resolves which knowledge bases are in scope for a request,
// fans the search out across them, and merges the raw hits into a single
// deduplicated, score-ordered result list.
package query

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/memoria-ai/memoria/internal/chunker"
	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/embedding"
	"github.com/memoria-ai/memoria/internal/telemetry"
	"github.com/memoria-ai/memoria/internal/vector"
)

// DefaultTopK bounds per-collection hits when the caller does not say.
const DefaultTopK = 10

// Registry is the read side of the knowledge-base registry.
type Registry interface {
	ListLocal(owner string) []*domain.KnowledgeBase
	ListGlobal() []*domain.KnowledgeBase
}

// Target is one collection to search, with its registry record when one
// exists (chat and legacy collections have none).
type Target struct {
	CollectionID string
	Base         *domain.KnowledgeBase
}

// Options scopes one query. Targets, when non-empty, bypasses scope
// resolution entirely; the priority scheduler and the session lock use this.
type Options struct {
	Owner                 string
	ChatID                string
	IndependentChatMemory bool
	Targets               []Target
	TopK                  int
	Threshold             float64
}

// Orchestrator runs multi-base retrieval.
type Orchestrator struct {
	registry Registry
	store    vector.Store
	embedder embedding.Embedder
}

func New(registry Registry, store vector.Store, embedder embedding.Embedder) *Orchestrator {
	return &Orchestrator{registry: registry, store: store, embedder: embedder}
}

// Query embeds the query text once, searches every in-scope collection
// concurrently, and returns the flattened hits sorted by backend score
// descending and deduplicated by exact trimmed text, first occurrence wins.
// A single collection's failure degrades to zero hits for that collection
// and never fails the query.
func (o *Orchestrator) Query(ctx context.Context, text string, opts Options) ([]domain.QueryResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrEmptyQuery
	}

	targets := o.resolveTargets(opts)
	if len(targets) == 0 {
		return nil, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "query.run", telemetry.SpanAttributes{
		Owner:     opts.Owner,
		Operation: "multi_base_query",
	})
	defer span.End()

	vectors, err := o.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	queryVec := vectors[0]

	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	var (
		mu   sync.Mutex
		hits []domain.QueryResult
		wg   sync.WaitGroup
	)
	for _, target := range targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			raw, err := o.store.Query(ctx, vector.QueryInput{
				CollectionID: t.CollectionID,
				SearchText:   text,
				Embedding:    queryVec,
				TopK:         topK,
				Threshold:    opts.Threshold,
			})
			if err != nil {
				log.Printf("query: collection %s failed, skipping: %v", t.CollectionID, err)
				return
			}
			results := make([]domain.QueryResult, 0, len(raw))
			for _, h := range raw {
				_, meta := chunker.Parse(h.Text)
				results = append(results, domain.QueryResult{
					Text:       h.Text,
					Score:      h.Score,
					Meta:       meta,
					Collection: t.CollectionID,
				})
			}
			mu.Lock()
			hits = append(hits, results...)
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	return MergeHits(hits), nil
}

// resolveTargets computes the collections in scope. Explicit targets win;
// otherwise independent chat memory pairs the conversation's own collection
// with the enabled globals, the normal mode pairs enabled locals with
// enabled globals, and an empty registry falls back to the single legacy
// collection.
func (o *Orchestrator) resolveTargets(opts Options) []Target {
	if len(opts.Targets) > 0 {
		return opts.Targets
	}

	var targets []Target
	if opts.IndependentChatMemory && opts.ChatID != "" {
		targets = append(targets, Target{
			CollectionID: domain.ScopeChat.CollectionID(opts.ChatID, ""),
		})
	} else {
		for _, b := range o.registry.ListLocal(opts.Owner) {
			if b.Enabled {
				targets = append(targets, Target{CollectionID: b.CollectionID(domain.ScopeLocal), Base: b})
			}
		}
	}
	for _, b := range o.registry.ListGlobal() {
		if b.Enabled {
			targets = append(targets, Target{CollectionID: b.CollectionID(domain.ScopeGlobal), Base: b})
		}
	}

	if len(targets) == 0 {
		legacyOwner := opts.ChatID
		if legacyOwner == "" {
			legacyOwner = opts.Owner
		}
		if legacyOwner != "" {
			targets = append(targets, Target{
				CollectionID: domain.ScopeLegacy.CollectionID(legacyOwner, ""),
			})
		}
	}
	return targets
}

// MergeHits sorts by backend score descending (stable) and then drops
// duplicate trimmed texts, keeping the first occurrence. The sort-then-dedup
// order means the highest-scoring copy survives; callers depend on that
// tie-break.
func MergeHits(hits []domain.QueryResult) []domain.QueryResult {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	seen := make(map[string]bool, len(hits))
	out := hits[:0]
	for _, h := range hits {
		key := strings.TrimSpace(h.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}
