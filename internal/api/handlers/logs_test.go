package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/memoria-ai/memoria/internal/pagination"
	"github.com/memoria-ai/memoria/internal/repository"
)

type MockLogPager struct {
	mock.Mock
}

func (m *MockLogPager) Page(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*repository.RetrievalLogEntry], error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*repository.RetrievalLogEntry]), args.Error(1)
}

func TestLogs_List(t *testing.T) {
	pager := new(MockLogPager)
	ts := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	pager.On("Page", mock.Anything, (*pagination.Cursor)(nil), 25).
		Return(&pagination.PageResult[*repository.RetrievalLogEntry]{
			Items: []*repository.RetrievalLogEntry{
				{ID: "log-1", Query: "dragons", BaseCount: 2, HitCount: 5, Reranked: true, DurationMS: 42, CreatedAt: ts},
			},
			Cursor:  "next-cursor",
			HasMore: true,
		}, nil)

	h := NewLogsHandler(pager)
	req := httptest.NewRequest(http.MethodGet, "/logs?limit=25", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data LogsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Entries, 1)
	assert.Equal(t, "dragons", resp.Data.Entries[0].Query)
	assert.Equal(t, int64(42), resp.Data.Entries[0].DurationMS)
	assert.Equal(t, "next-cursor", resp.Data.Cursor)
	assert.True(t, resp.Data.HasMore)
}

func TestLogs_ListWithCursor(t *testing.T) {
	pager := new(MockLogPager)
	ts := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	encoded := pagination.EncodeCursor("log-9", ts)

	pager.On("Page", mock.Anything, mock.MatchedBy(func(c *pagination.Cursor) bool {
		return c != nil && c.LastID == "log-9" && c.Timestamp.Equal(ts)
	}), 0).Return(&pagination.PageResult[*repository.RetrievalLogEntry]{}, nil)

	h := NewLogsHandler(pager)
	req := httptest.NewRequest(http.MethodGet, "/logs?cursor="+encoded, nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	pager.AssertExpectations(t)
}

func TestLogs_InvalidCursor(t *testing.T) {
	h := NewLogsHandler(new(MockLogPager))
	req := httptest.NewRequest(http.MethodGet, "/logs?cursor=%21%21not-base64", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogs_InvalidLimit(t *testing.T) {
	h := NewLogsHandler(new(MockLogPager))

	for _, raw := range []string{"abc", "-5"} {
		req := httptest.NewRequest(http.MethodGet, "/logs?limit="+raw, nil)
		w := httptest.NewRecorder()
		h.List(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}
