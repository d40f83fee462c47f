package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/memoria-ai/memoria/internal/api"
	"github.com/memoria-ai/memoria/internal/domain"
)

type RegistryService interface {
	Add(ctx context.Context, owner, name string, source domain.Source) (*domain.KnowledgeBase, error)
	Remove(ctx context.Context, id string, scope domain.Scope, owner string) error
	Toggle(ctx context.Context, id string, scope domain.Scope, owner string) (bool, error)
	Rename(ctx context.Context, id, newName string, scope domain.Scope, owner string) error
	Move(ctx context.Context, id string, fromScope domain.Scope, owner string) error
	Get(id string, scope domain.Scope, owner string) (*domain.KnowledgeBase, error)
	ListMerged(owner string) []*domain.KnowledgeBase
}

type BasesHandler struct {
	svc RegistryService
}

func NewBasesHandler(svc RegistryService) *BasesHandler {
	return &BasesHandler{svc: svc}
}

type CreateBaseRequest struct {
	Owner  string `json:"owner"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

type RenameBaseRequest struct {
	Name string `json:"name"`
}

type BaseResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Owner     string `json:"owner"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
}

func baseToResponse(b *domain.KnowledgeBase) *BaseResponse {
	return &BaseResponse{
		ID:        b.ID,
		Name:      b.Name,
		Enabled:   b.Enabled,
		Owner:     b.Owner,
		Source:    string(b.Source),
		CreatedAt: b.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func (h *BasesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	source := domain.Source(req.Source)
	if req.Source == "" {
		source = domain.SourceManual
	}
	if !domain.IsValidSource(source) {
		api.Error(w, http.StatusBadRequest, "invalid source")
		return
	}

	base, err := h.svc.Add(r.Context(), req.Owner, req.Name, source)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, baseToResponse(base))
}

func (h *BasesHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	bases := h.svc.ListMerged(owner)

	out := make([]*BaseResponse, 0, len(bases))
	for _, b := range bases {
		out = append(out, baseToResponse(b))
	}
	api.Success(w, http.StatusOK, out)
}

func (h *BasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, scope, owner, ok := baseSelector(w, r)
	if !ok {
		return
	}

	base, err := h.svc.Get(id, scope, owner)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, baseToResponse(base))
}

// Delete purges the base's vectors before removing the record; a failed
// purge keeps the record so the vectors stay reachable.
func (h *BasesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, scope, owner, ok := baseSelector(w, r)
	if !ok {
		return
	}

	if err := h.svc.Remove(r.Context(), id, scope, owner); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *BasesHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, scope, owner, ok := baseSelector(w, r)
	if !ok {
		return
	}

	enabled, err := h.svc.Toggle(r.Context(), id, scope, owner)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (h *BasesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, scope, owner, ok := baseSelector(w, r)
	if !ok {
		return
	}

	var req RenameBaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Rename(r.Context(), id, req.Name, scope, owner); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "renamed"})
}

// Move flips a base between the local and global scopes.
func (h *BasesHandler) Move(w http.ResponseWriter, r *http.Request) {
	id, scope, owner, ok := baseSelector(w, r)
	if !ok {
		return
	}

	if err := h.svc.Move(r.Context(), id, scope, owner); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "moved"})
}

// baseSelector pulls the {id} path param and the scope/owner query params
// shared by the single-base endpoints. Scope defaults to local.
func baseSelector(w http.ResponseWriter, r *http.Request) (id string, scope domain.Scope, owner string, ok bool) {
	id = chi.URLParam(r, "id")
	owner = r.URL.Query().Get("owner")

	scope = domain.Scope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = domain.ScopeLocal
	}
	if !domain.IsValidScope(scope) {
		api.Error(w, http.StatusBadRequest, "invalid scope")
		return "", "", "", false
	}
	return id, scope, owner, true
}
