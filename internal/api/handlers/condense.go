package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/memoria-ai/memoria/internal/api"
	"github.com/memoria-ai/memoria/internal/domain"
)

// CondenseRunner drives one condensation pass for a conversation.
type CondenseRunner interface {
	Run(ctx context.Context, chatID string) error
}

// CondenseProgress reads the per-conversation floor watermark.
type CondenseProgress interface {
	Get(ctx context.Context, chatID string) (*domain.CondensationProgress, error)
}

// SessionLocker pins and releases the active collection id.
type SessionLocker interface {
	Acquire(collectionID string)
	Release()
	Current() (string, bool)
}

type CondenseHandler struct {
	runner   CondenseRunner
	progress CondenseProgress
	sessions SessionLocker
}

func NewCondenseHandler(runner CondenseRunner, progress CondenseProgress, sessions SessionLocker) *CondenseHandler {
	return &CondenseHandler{runner: runner, progress: progress, sessions: sessions}
}

type CondenseRequest struct {
	ChatID string `json:"chat_id"`
}

type CondenseProgressResponse struct {
	ChatID             string `json:"chat_id"`
	LastProcessedFloor int    `json:"last_processed_floor"`
}

// Trigger runs condensation synchronously for one conversation. An overlap
// with a running pass surfaces as 409.
func (h *CondenseHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req CondenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChatID == "" {
		api.Error(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	if err := h.runner.Run(r.Context(), req.ChatID); err != nil {
		api.HandleError(w, err)
		return
	}

	prog, err := h.progress.Get(r.Context(), req.ChatID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, CondenseProgressResponse{
		ChatID:             req.ChatID,
		LastProcessedFloor: prog.LastProcessedFloor,
	})
}

func (h *CondenseHandler) Progress(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chat_id")

	prog, err := h.progress.Get(r.Context(), chatID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, CondenseProgressResponse{
		ChatID:             chatID,
		LastProcessedFloor: prog.LastProcessedFloor,
	})
}

type SessionLockRequest struct {
	CollectionID string `json:"collection_id"`
}

// LockSession pins the active collection for ingestion and query until
// released.
func (h *CondenseHandler) LockSession(w http.ResponseWriter, r *http.Request) {
	var req SessionLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CollectionID == "" {
		api.Error(w, http.StatusBadRequest, "collection_id is required")
		return
	}

	h.sessions.Acquire(req.CollectionID)
	api.Success(w, http.StatusOK, map[string]string{"locked": req.CollectionID})
}

func (h *CondenseHandler) UnlockSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Release()
	api.Success(w, http.StatusOK, map[string]string{"status": "released"})
}
