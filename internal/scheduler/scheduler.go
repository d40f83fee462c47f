// Package scheduler implements priority-grouped retrieval: designated
// sources get quota-guaranteed slots ahead of the globally re-ranked pool,
// and group outputs are concatenated, never interleaved by score.
package scheduler

import (
	"context"
	"log"
	"sync"

	"github.com/samber/lo"

	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/fusion"
	"github.com/memoria-ai/memoria/internal/query"
)

// GroupConfig declares one priority group: every enabled base of Source is
// queried as a unit and its output capped at Limit.
type GroupConfig struct {
	Source domain.Source
	Limit  int
}

// Registry is the read side of the knowledge-base registry.
type Registry interface {
	ListLocal(owner string) []*domain.KnowledgeBase
	ListGlobal() []*domain.KnowledgeBase
}

// Scheduler partitions the enabled bases and runs the groups concurrently.
type Scheduler struct {
	registry Registry
	queries  *query.Orchestrator
	scorer   *fusion.Scorer
	groups   []GroupConfig
}

func New(registry Registry, queries *query.Orchestrator, scorer *fusion.Scorer, groups []GroupConfig) *Scheduler {
	return &Scheduler{
		registry: registry,
		queries:  queries,
		scorer:   scorer,
		groups:   groups,
	}
}

// Retrieve queries every group concurrently and concatenates the outputs:
// priority groups first, in declared order, each keeping its raw query
// ordering; the normal group last, fully rerank-fused. A priority hit is
// therefore never outranked by a normal hit regardless of score.
func (s *Scheduler) Retrieve(ctx context.Context, text string, opts query.Options, totalMessages int) ([]domain.QueryResult, bool, error) {
	// Caller-supplied targets (an active session lock pins one collection)
	// override scope resolution entirely: the registry is not consulted and
	// the pinned collections run as one fused group.
	if len(opts.Targets) > 0 {
		results, err := s.queries.Query(ctx, text, opts)
		if err != nil {
			return nil, false, err
		}
		out, reranked := s.scorer.Rerank(ctx, results, text, totalMessages)
		return out, reranked, nil
	}

	enabled := s.enabledBases(opts.Owner)

	prioritySources := lo.Map(s.groups, func(g GroupConfig, _ int) domain.Source { return g.Source })
	normal := lo.Filter(enabled, func(t query.Target, _ int) bool {
		return t.Base == nil || !lo.Contains(prioritySources, t.Base.Source)
	})

	groupOut := make([][]domain.QueryResult, len(s.groups))
	var (
		normalOut []domain.QueryResult
		reranked  bool
		wg        sync.WaitGroup
	)

	for i, g := range s.groups {
		targets := lo.Filter(enabled, func(t query.Target, _ int) bool {
			return t.Base != nil && t.Base.Source == g.Source
		})
		if len(targets) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, g GroupConfig, targets []query.Target) {
			defer wg.Done()
			groupOpts := opts
			groupOpts.Targets = targets
			results, err := s.queries.Query(ctx, text, groupOpts)
			if err != nil {
				log.Printf("scheduler: priority group %s failed, skipping: %v", g.Source, err)
				return
			}
			if g.Limit > 0 && len(results) > g.Limit {
				results = results[:g.Limit]
			}
			groupOut[i] = results
		}(i, g, targets)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if len(normal) == 0 {
			return
		}
		normalOpts := opts
		normalOpts.Targets = normal
		results, err := s.queries.Query(ctx, text, normalOpts)
		if err != nil {
			log.Printf("scheduler: normal group failed, skipping: %v", err)
			return
		}
		normalOut, reranked = s.scorer.Rerank(ctx, results, text, totalMessages)
	}()

	wg.Wait()

	var out []domain.QueryResult
	for _, g := range groupOut {
		out = append(out, g...)
	}
	out = append(out, normalOut...)
	return out, reranked, nil
}

func (s *Scheduler) enabledBases(owner string) []query.Target {
	var targets []query.Target
	for _, b := range s.registry.ListLocal(owner) {
		if b.Enabled {
			targets = append(targets, query.Target{CollectionID: b.CollectionID(domain.ScopeLocal), Base: b})
		}
	}
	for _, b := range s.registry.ListGlobal() {
		if b.Enabled {
			targets = append(targets, query.Target{CollectionID: b.CollectionID(domain.ScopeGlobal), Base: b})
		}
	}
	return targets
}
