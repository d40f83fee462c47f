package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/memoria-ai/memoria/internal/api"
	"github.com/memoria-ai/memoria/internal/pagination"
	"github.com/memoria-ai/memoria/internal/repository"
)

// LogPager pages through the retrieval log newest-first.
type LogPager interface {
	Page(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*repository.RetrievalLogEntry], error)
}

type LogsHandler struct {
	logs LogPager
}

func NewLogsHandler(logs LogPager) *LogsHandler {
	return &LogsHandler{logs: logs}
}

type LogEntryResponse struct {
	ID         string `json:"id"`
	Query      string `json:"query"`
	BaseCount  int    `json:"base_count"`
	HitCount   int    `json:"hit_count"`
	Reranked   bool   `json:"reranked"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

type LogsResponse struct {
	Entries []LogEntryResponse `json:"entries"`
	Cursor  string             `json:"cursor,omitempty"`
	HasMore bool               `json:"has_more"`
}

func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	cursor, err := pagination.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	page, err := h.logs.Page(r.Context(), cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	entries := make([]LogEntryResponse, 0, len(page.Items))
	for _, e := range page.Items {
		entries = append(entries, LogEntryResponse{
			ID:         e.ID,
			Query:      e.Query,
			BaseCount:  e.BaseCount,
			HitCount:   e.HitCount,
			Reranked:   e.Reranked,
			DurationMS: e.DurationMS,
			CreatedAt:  e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	api.Success(w, http.StatusOK, LogsResponse{
		Entries: entries,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}
