package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/memoria-ai/memoria/internal/api"
	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/query"
	"github.com/memoria-ai/memoria/internal/repository"
)

// Retriever is the scheduler entry point: priority groups plus the fused
// normal group, concatenated.
type Retriever interface {
	Retrieve(ctx context.Context, text string, opts query.Options, totalMessages int) ([]domain.QueryResult, bool, error)
}

// SessionPin reports the collection pinned by an active session lock.
type SessionPin interface {
	Current() (string, bool)
}

// RetrievalLogger appends one entry per served query; failures are logged
// and never fail the request.
type RetrievalLogger interface {
	Insert(ctx context.Context, e *repository.RetrievalLogEntry) error
}

type QueryHandler struct {
	retriever Retriever
	sessions  SessionPin
	logs      RetrievalLogger
}

func NewQueryHandler(retriever Retriever, sessions SessionPin, logs RetrievalLogger) *QueryHandler {
	return &QueryHandler{retriever: retriever, sessions: sessions, logs: logs}
}

type QueryRequest struct {
	Owner                 string  `json:"owner"`
	ChatID                string  `json:"chat_id,omitempty"`
	Text                  string  `json:"text"`
	TopK                  int     `json:"top_k,omitempty"`
	Threshold             float64 `json:"threshold,omitempty"`
	TotalMessages         int     `json:"total_messages,omitempty"`
	IndependentChatMemory bool    `json:"independent_chat_memory,omitempty"`
}

type QueryHit struct {
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
	RerankScore float64 `json:"rerank_score"`
	FinalScore  float64 `json:"final_score"`
	Source      string  `json:"source"`
	Collection  string  `json:"collection"`
}

type QueryResponse struct {
	Hits     []QueryHit `json:"hits"`
	Reranked bool       `json:"reranked"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := query.Options{
		Owner:                 req.Owner,
		ChatID:                req.ChatID,
		IndependentChatMemory: req.IndependentChatMemory,
		TopK:                  req.TopK,
		Threshold:             req.Threshold,
	}
	if id, ok := h.sessions.Current(); ok {
		opts.Targets = []query.Target{{CollectionID: id}}
	}

	start := time.Now()
	results, reranked, err := h.retriever.Retrieve(r.Context(), req.Text, opts, req.TotalMessages)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if h.logs != nil {
		bases := lo.Uniq(lo.Map(results, func(r domain.QueryResult, _ int) string { return r.Collection }))
		entry := &repository.RetrievalLogEntry{
			ID:         uuid.NewString(),
			Query:      req.Text,
			BaseCount:  len(bases),
			HitCount:   len(results),
			Reranked:   reranked,
			DurationMS: time.Since(start).Milliseconds(),
			CreatedAt:  time.Now().UTC(),
		}
		if err := h.logs.Insert(r.Context(), entry); err != nil {
			log.Printf("query: retrieval log insert failed: %v", err)
		}
	}

	hits := make([]QueryHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, QueryHit{
			Text:        res.Text,
			Score:       res.Score,
			RerankScore: res.RerankScore,
			FinalScore:  res.FinalScore,
			Source:      string(res.Meta.Source()),
			Collection:  res.Collection,
		})
	}
	api.Success(w, http.StatusOK, QueryResponse{Hits: hits, Reranked: reranked})
}
