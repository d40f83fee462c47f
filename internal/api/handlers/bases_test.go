package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/memoria-ai/memoria/internal/domain"
)

type MockRegistryService struct {
	mock.Mock
}

func (m *MockRegistryService) Add(ctx context.Context, owner, name string, source domain.Source) (*domain.KnowledgeBase, error) {
	args := m.Called(ctx, owner, name, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeBase), args.Error(1)
}

func (m *MockRegistryService) Remove(ctx context.Context, id string, scope domain.Scope, owner string) error {
	return m.Called(ctx, id, scope, owner).Error(0)
}

func (m *MockRegistryService) Toggle(ctx context.Context, id string, scope domain.Scope, owner string) (bool, error) {
	args := m.Called(ctx, id, scope, owner)
	return args.Bool(0), args.Error(1)
}

func (m *MockRegistryService) Rename(ctx context.Context, id, newName string, scope domain.Scope, owner string) error {
	return m.Called(ctx, id, newName, scope, owner).Error(0)
}

func (m *MockRegistryService) Move(ctx context.Context, id string, fromScope domain.Scope, owner string) error {
	return m.Called(ctx, id, fromScope, owner).Error(0)
}

func (m *MockRegistryService) Get(id string, scope domain.Scope, owner string) (*domain.KnowledgeBase, error) {
	args := m.Called(id, scope, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeBase), args.Error(1)
}

func (m *MockRegistryService) ListMerged(owner string) []*domain.KnowledgeBase {
	args := m.Called(owner)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*domain.KnowledgeBase)
}

func basesRouter(svc RegistryService) http.Handler {
	h := NewBasesHandler(svc)
	r := chi.NewRouter()
	r.Post("/bases", h.Create)
	r.Get("/bases", h.List)
	r.Get("/bases/{id}", h.Get)
	r.Delete("/bases/{id}", h.Delete)
	r.Post("/bases/{id}/toggle", h.Toggle)
	r.Post("/bases/{id}/rename", h.Rename)
	r.Post("/bases/{id}/move", h.Move)
	return r
}

func TestBases_Create(t *testing.T) {
	svc := new(MockRegistryService)
	created := domain.NewKnowledgeBase("kb1", "Notes", "alice", domain.SourceManual, time.Now())
	svc.On("Add", mock.Anything, "alice", "Notes", domain.SourceManual).Return(created, nil)

	body := strings.NewReader(`{"owner":"alice","name":"Notes"}`)
	req := httptest.NewRequest(http.MethodPost, "/bases", body)
	w := httptest.NewRecorder()
	basesRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"kb1"`)
	svc.AssertExpectations(t)
}

func TestBases_CreateInvalidSource(t *testing.T) {
	svc := new(MockRegistryService)

	body := strings.NewReader(`{"owner":"alice","name":"Notes","source":"pdf"}`)
	req := httptest.NewRequest(http.MethodPost, "/bases", body)
	w := httptest.NewRecorder()
	basesRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBases_CreateEmptyName(t *testing.T) {
	svc := new(MockRegistryService)
	svc.On("Add", mock.Anything, "alice", "", domain.SourceManual).
		Return(nil, domain.ErrEmptyBaseName)

	body := strings.NewReader(`{"owner":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/bases", body)
	w := httptest.NewRecorder()
	basesRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBases_List(t *testing.T) {
	svc := new(MockRegistryService)
	svc.On("ListMerged", "alice").Return([]*domain.KnowledgeBase{
		domain.NewKnowledgeBase("kb1", "Notes", "alice", domain.SourceManual, time.Now()),
		domain.NewKnowledgeBase("g1", "Shared", domain.GlobalOwner, domain.SourceLorebook, time.Now()),
	})

	req := httptest.NewRequest(http.MethodGet, "/bases?owner=alice", nil)
	w := httptest.NewRecorder()
	basesRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []BaseResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "kb1", resp.Data[0].ID)
	assert.Equal(t, "lorebook", resp.Data[1].Source)
}

func TestBases_GetNotFound(t *testing.T) {
	svc := new(MockRegistryService)
	svc.On("Get", "missing", domain.ScopeLocal, "alice").Return(nil, domain.ErrBaseNotFound)

	req := httptest.NewRequest(http.MethodGet, "/bases/missing?owner=alice", nil)
	w := httptest.NewRecorder()
	basesRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBases_InvalidScope(t *testing.T) {
	svc := new(MockRegistryService)

	req := httptest.NewRequest(http.MethodGet, "/bases/kb1?scope=galaxy", nil)
	w := httptest.NewRecorder()
	basesRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestBases_DeletePurgeFailureIsBadGateway(t *testing.T) {
	svc := new(MockRegistryService)
	svc.On("Remove", mock.Anything, "kb1", domain.ScopeLocal, "alice").
		Return(domain.ErrPurgeFailed)

	req := httptest.NewRequest(http.MethodDelete, "/bases/kb1?owner=alice", nil)
	w := httptest.NewRecorder()
	basesRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestBases_Toggle(t *testing.T) {
	svc := new(MockRegistryService)
	svc.On("Toggle", mock.Anything, "kb1", domain.ScopeGlobal, "").Return(false, nil)

	req := httptest.NewRequest(http.MethodPost, "/bases/kb1/toggle?scope=global", nil)
	w := httptest.NewRecorder()
	basesRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"enabled":false`)
}

func TestBases_Rename(t *testing.T) {
	svc := new(MockRegistryService)
	svc.On("Rename", mock.Anything, "kb1", "Better", domain.ScopeLocal, "alice").Return(nil)

	body := strings.NewReader(`{"name":"Better"}`)
	req := httptest.NewRequest(http.MethodPost, "/bases/kb1/rename?owner=alice", body)
	w := httptest.NewRecorder()
	basesRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestBases_Move(t *testing.T) {
	svc := new(MockRegistryService)
	svc.On("Move", mock.Anything, "kb1", domain.ScopeLocal, "alice").Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/bases/kb1/move?owner=alice", nil)
	w := httptest.NewRecorder()
	basesRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}
