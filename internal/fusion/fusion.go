// Package fusion blends the optional external rerank score with the raw
// backend similarity and a local contextual weight into the final ranking.
// The contextual weight applies even when no reranker is configured, so
// source kind and recency always influence ordering.
package fusion

import (
	"context"
	"log"
	"sort"

	"github.com/samber/lo"

	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/rerank"
)

// Config tunes the hybrid score.
type Config struct {
	// Alpha blends rerank against backend similarity:
	// semantic = rerank*Alpha + backend*(1-Alpha).
	Alpha float64
	// TopN truncates the fused output; <= 0 keeps everything.
	TopN int
	// Fixed source multipliers, both > 1.0 by default.
	LorebookWeight float64
	ManualWeight   float64
	// ChatRecencySlope scales the linear recency bonus for chat chunks:
	// weight = 1 + slope * floor/totalMessages.
	ChatRecencySlope float64
}

// DefaultConfig provides the stock fusion parameters.
func DefaultConfig() Config {
	return Config{
		Alpha:            0.7,
		TopN:             10,
		LorebookWeight:   1.2,
		ManualWeight:     1.1,
		ChatRecencySlope: 0.3,
	}
}

// Scorer applies hybrid rerank and fusion scoring.
type Scorer struct {
	reranker rerank.Reranker
	cfg      Config
}

// New creates a Scorer. A nil reranker disables the external call; scoring
// then runs with rerank scores of zero.
func New(reranker rerank.Reranker, cfg Config) *Scorer {
	if cfg.Alpha < 0 || cfg.Alpha > 1 {
		cfg.Alpha = DefaultConfig().Alpha
	}
	return &Scorer{reranker: reranker, cfg: cfg}
}

// Rerank scores and reorders results. The external call covers all texts at
// once, keyed by original index; its failure degrades to zero rerank scores
// and reranked=false, never an error. The returned slice is sorted by final
// score descending and truncated to TopN.
func (s *Scorer) Rerank(ctx context.Context, results []domain.QueryResult, queryText string, totalMessages int) ([]domain.QueryResult, bool) {
	if len(results) == 0 {
		return results, false
	}

	reranked := false
	if s.reranker != nil {
		docs := lo.Map(results, func(r domain.QueryResult, _ int) string { return r.Text })
		scores, err := s.reranker.Rerank(ctx, queryText, docs)
		if err != nil {
			log.Printf("fusion: rerank failed, falling back to local scoring: %v", err)
		} else {
			for _, sc := range scores {
				results[sc.Index].RerankScore = sc.Relevance
			}
			reranked = true
		}
	}

	for i := range results {
		r := &results[i]
		semantic := r.RerankScore*s.cfg.Alpha + r.Score*(1-s.cfg.Alpha)
		r.FinalScore = semantic * s.contextualWeight(r.Meta, totalMessages)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	if s.cfg.TopN > 0 && len(results) > s.cfg.TopN {
		results = results[:s.cfg.TopN]
	}
	return results, reranked
}

// contextualWeight is the local multiplier: fixed boosts for lorebook and
// manual sources, a linear recency boost for chat history, 1.0 otherwise.
func (s *Scorer) contextualWeight(meta domain.ChunkMeta, totalMessages int) float64 {
	switch m := meta.(type) {
	case domain.LorebookMeta:
		return s.cfg.LorebookWeight
	case domain.ManualMeta:
		return s.cfg.ManualWeight
	case domain.ChatMeta:
		if totalMessages <= 0 {
			return 1.0
		}
		return 1.0 + s.cfg.ChatRecencySlope*float64(m.Floor)/float64(totalMessages)
	default:
		return 1.0
	}
}
