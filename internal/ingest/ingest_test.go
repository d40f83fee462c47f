package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/memoria-ai/memoria/internal/chunker"
	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/vector"
)

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) ResolveOrCreate(ctx context.Context, owner, name string, source domain.Source) (*domain.KnowledgeBase, error) {
	args := m.Called(ctx, owner, name, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeBase), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Insert(ctx context.Context, collectionID string, items []domain.VectorItem) error {
	return m.Called(ctx, collectionID, items).Error(0)
}

func (m *MockStore) Query(ctx context.Context, in vector.QueryInput) ([]vector.RawHit, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vector.RawHit), args.Error(1)
}

func (m *MockStore) Purge(ctx context.Context, collectionID string) error {
	return m.Called(ctx, collectionID).Error(0)
}

func (m *MockStore) List(ctx context.Context, collectionID string) ([]string, error) {
	args := m.Called(ctx, collectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if vecs, ok := args.Get(0).([][]float32); ok {
		return vecs, args.Error(1)
	}
	// Convenience: generate one vector per text.
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{0.1, 0.2}
	}
	return vecs, args.Error(1)
}

type MockCheckpoints struct {
	mock.Mock
}

func (m *MockCheckpoints) Upsert(ctx context.Context, cp *domain.IngestCheckpoint) error {
	return m.Called(ctx, cp).Error(0)
}

func (m *MockCheckpoints) Get(ctx context.Context, jobID string) (*domain.IngestCheckpoint, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestCheckpoint), args.Error(1)
}

func (m *MockCheckpoints) Delete(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) PutSourceText(ctx context.Context, collectionID string, text string) error {
	return m.Called(ctx, collectionID, text).Error(0)
}

func anyVectors() interface{} { return "generate" }

func newOrchestrator(registry Registry, store vector.Store, embedder *MockEmbedder, cps CheckpointStore, archive Archiver) *Orchestrator {
	return New(Config{
		Registry:    registry,
		Store:       store,
		Embedder:    embedder,
		Checkpoints: cps,
		Archive:     archive,
		ChunkOpts:   chunker.Options{ChunkSize: 10, Overlap: 0},
		BatchSize:   2,
	})
}

func TestIngest_ResolvesBaseAndStoresChunks(t *testing.T) {
	registry := new(MockRegistry)
	store := new(MockStore)
	embedder := new(MockEmbedder)

	base := domain.NewKnowledgeBase("kb1", "Notes", "alice", domain.SourceManual, time.Now())
	registry.On("ResolveOrCreate", mock.Anything, "alice", "Notes", domain.SourceManual).
		Return(base, nil)

	embedder.On("Embed", mock.Anything, mock.Anything).Return(anyVectors(), nil)

	var inserted []domain.VectorItem
	store.On("Insert", mock.Anything, "alice_kb1", mock.Anything).
		Run(func(args mock.Arguments) {
			inserted = append(inserted, args.Get(2).([]domain.VectorItem)...)
		}).
		Return(nil)

	orch := newOrchestrator(registry, store, embedder, nil, nil)
	res, err := orch.Ingest(context.Background(), Request{
		Owner:       "alice",
		DisplayName: "Notes",
		Source:      domain.SourceManual,
		Text:        strings.Repeat("a", 25),
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, "alice_kb1", res.CollectionID)
	assert.Equal(t, base, res.Base)

	require.Len(t, inserted, 3)
	hashes := map[string]bool{}
	for _, item := range inserted {
		assert.NotEmpty(t, item.Hash)
		assert.NotEmpty(t, item.Vector)
		hashes[item.Hash] = true
	}
	assert.Len(t, hashes, 3)
}

func TestIngest_ExplicitCollectionBypassesRegistry(t *testing.T) {
	registry := new(MockRegistry)
	store := new(MockStore)
	embedder := new(MockEmbedder)

	embedder.On("Embed", mock.Anything, mock.Anything).Return(anyVectors(), nil)
	store.On("Insert", mock.Anything, "pinned_coll", mock.Anything).Return(nil)

	orch := newOrchestrator(registry, store, embedder, nil, nil)
	res, err := orch.Ingest(context.Background(), Request{
		Owner:        "alice",
		Source:       domain.SourceManual,
		Text:         "short text",
		CollectionID: "pinned_coll",
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "pinned_coll", res.CollectionID)
	assert.Nil(t, res.Base)
	registry.AssertNotCalled(t, "ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_ZeroChunksIsSuccess(t *testing.T) {
	registry := new(MockRegistry)
	store := new(MockStore)
	embedder := new(MockEmbedder)

	base := domain.NewKnowledgeBase("kb1", "Empty", "alice", domain.SourceManual, time.Now())
	registry.On("ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(base, nil)

	orch := newOrchestrator(registry, store, embedder, nil, nil)
	res, err := orch.Ingest(context.Background(), Request{
		Owner:       "alice",
		DisplayName: "Empty",
		Source:      domain.SourceManual,
		Text:        "   ",
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_InvalidSourceRejected(t *testing.T) {
	orch := newOrchestrator(new(MockRegistry), new(MockStore), new(MockEmbedder), nil, nil)

	_, err := orch.Ingest(context.Background(), Request{
		Owner:       "alice",
		DisplayName: "Notes",
		Source:      domain.Source("pdf"),
		Text:        "text",
	}, nil)

	assert.ErrorIs(t, err, domain.ErrInvalidSource)
}

func TestIngest_MissingDisplayNameRejected(t *testing.T) {
	orch := newOrchestrator(new(MockRegistry), new(MockStore), new(MockEmbedder), nil, nil)

	_, err := orch.Ingest(context.Background(), Request{
		Owner:  "alice",
		Source: domain.SourceManual,
		Text:   "text",
	}, nil)

	assert.ErrorIs(t, err, domain.ErrEmptyBaseName)
}

func TestIngest_CheckpointsPerBatchAndDeletesOnCompletion(t *testing.T) {
	registry := new(MockRegistry)
	store := new(MockStore)
	embedder := new(MockEmbedder)
	cps := new(MockCheckpoints)

	base := domain.NewKnowledgeBase("kb1", "Notes", "alice", domain.SourceManual, time.Now())
	registry.On("ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(base, nil)
	embedder.On("Embed", mock.Anything, mock.Anything).Return(anyVectors(), nil)
	store.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	var checkpointed []int
	cps.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			cp := args.Get(1).(*domain.IngestCheckpoint)
			assert.Equal(t, "job-1", cp.JobID)
			assert.Equal(t, 3, cp.Total)
			assert.NotEmpty(t, cp.Payload)
			checkpointed = append(checkpointed, cp.ProcessedIndex)
		}).
		Return(nil)
	cps.On("Delete", mock.Anything, "job-1").Return(nil).Once()

	orch := newOrchestrator(registry, store, embedder, cps, nil)
	_, err := orch.Ingest(context.Background(), Request{
		Owner:       "alice",
		DisplayName: "Notes",
		Source:      domain.SourceManual,
		Text:        strings.Repeat("a", 25),
		JobID:       "job-1",
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, checkpointed)
	cps.AssertExpectations(t)
}

func TestIngest_ResumeSkipsProcessedChunks(t *testing.T) {
	registry := new(MockRegistry)
	store := new(MockStore)
	embedder := new(MockEmbedder)
	cps := new(MockCheckpoints)

	base := domain.NewKnowledgeBase("kb1", "Notes", "alice", domain.SourceManual, time.Now())
	registry.On("ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(base, nil)

	var embedded [][]string
	embedder.On("Embed", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			embedded = append(embedded, args.Get(1).([]string))
		}).
		Return(anyVectors(), nil)
	store.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	cps.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	cps.On("Delete", mock.Anything, "job-1").Return(nil)

	orch := newOrchestrator(registry, store, embedder, cps, nil)
	_, err := orch.Ingest(context.Background(), Request{
		Owner:       "alice",
		DisplayName: "Notes",
		Source:      domain.SourceManual,
		Text:        strings.Repeat("a", 25),
		JobID:       "job-1",
		ResumeFrom:  2,
	}, nil)

	require.NoError(t, err)
	// Three chunks total, two already processed: only the final chunk is
	// embedded again.
	require.Len(t, embedded, 1)
	assert.Len(t, embedded[0], 1)
}

func TestResume_RebuildsRequestFromPayload(t *testing.T) {
	registry := new(MockRegistry)
	store := new(MockStore)
	embedder := new(MockEmbedder)
	cps := new(MockCheckpoints)

	base := domain.NewKnowledgeBase("kb1", "Notes", "alice", domain.SourceManual, time.Now())
	registry.On("ResolveOrCreate", mock.Anything, "alice", "Notes", domain.SourceManual).
		Return(base, nil)
	embedder.On("Embed", mock.Anything, mock.Anything).Return(anyVectors(), nil)
	store.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	cps.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	cps.On("Delete", mock.Anything, "job-7").Return(nil)

	payload := []byte(`{"owner":"alice","display_name":"Notes","source":"manual","text":"` + strings.Repeat("a", 25) + `"}`)

	orch := newOrchestrator(registry, store, embedder, cps, nil)
	res, err := orch.Resume(context.Background(), &domain.IngestCheckpoint{
		JobID:          "job-7",
		CollectionID:   "alice_kb1",
		ProcessedIndex: 2,
		Total:          3,
		Payload:        payload,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	embedder.AssertNumberOfCalls(t, "Embed", 1)
}

func TestResume_CorruptPayload(t *testing.T) {
	orch := newOrchestrator(new(MockRegistry), new(MockStore), new(MockEmbedder), new(MockCheckpoints), nil)

	_, err := orch.Resume(context.Background(), &domain.IngestCheckpoint{
		JobID:   "job-7",
		Payload: []byte("{not json"),
	})

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeInternal, de.Code)
}

func TestIngest_CancellationIsDistinctFromFailure(t *testing.T) {
	registry := new(MockRegistry)
	store := new(MockStore)
	embedder := new(MockEmbedder)

	base := domain.NewKnowledgeBase("kb1", "Notes", "alice", domain.SourceManual, time.Now())
	registry.On("ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(base, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := newOrchestrator(registry, store, embedder, nil, nil)
	_, err := orch.Ingest(ctx, Request{
		Owner:       "alice",
		DisplayName: "Notes",
		Source:      domain.SourceManual,
		Text:        strings.Repeat("a", 25),
	}, nil)

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeCancelled, de.Code)
	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_EmbedFailureMidRunSurfacesAsBackendError(t *testing.T) {
	registry := new(MockRegistry)
	store := new(MockStore)
	embedder := new(MockEmbedder)

	base := domain.NewKnowledgeBase("kb1", "Notes", "alice", domain.SourceManual, time.Now())
	registry.On("ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(base, nil)
	embedder.On("Embed", mock.Anything, mock.Anything).
		Return(nil, domain.ErrEmbeddingFailed)

	orch := newOrchestrator(registry, store, embedder, nil, nil)
	_, err := orch.Ingest(context.Background(), Request{
		Owner:       "alice",
		DisplayName: "Notes",
		Source:      domain.SourceManual,
		Text:        strings.Repeat("a", 25),
	}, nil)

	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
}

func TestIngest_ArchiveFailureDoesNotFailRun(t *testing.T) {
	registry := new(MockRegistry)
	store := new(MockStore)
	embedder := new(MockEmbedder)
	archive := new(MockArchiver)

	base := domain.NewKnowledgeBase("kb1", "Notes", "alice", domain.SourceManual, time.Now())
	registry.On("ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(base, nil)
	embedder.On("Embed", mock.Anything, mock.Anything).Return(anyVectors(), nil)
	store.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	archive.On("PutSourceText", mock.Anything, "alice_kb1", mock.Anything).
		Return(errors.New("bucket gone"))

	orch := newOrchestrator(registry, store, embedder, nil, archive)
	res, err := orch.Ingest(context.Background(), Request{
		Owner:       "alice",
		DisplayName: "Notes",
		Source:      domain.SourceManual,
		Text:        "short text",
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	archive.AssertExpectations(t)
}

func TestIngest_ProgressEventsReported(t *testing.T) {
	registry := new(MockRegistry)
	store := new(MockStore)
	embedder := new(MockEmbedder)

	base := domain.NewKnowledgeBase("kb1", "Notes", "alice", domain.SourceManual, time.Now())
	registry.On("ResolveOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(base, nil)
	embedder.On("Embed", mock.Anything, mock.Anything).Return(anyVectors(), nil)
	store.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	progress := make(chan ProgressEvent, 10)

	orch := newOrchestrator(registry, store, embedder, nil, nil)
	_, err := orch.Ingest(context.Background(), Request{
		Owner:       "alice",
		DisplayName: "Notes",
		Source:      domain.SourceManual,
		Text:        strings.Repeat("a", 25),
	}, progress)
	close(progress)

	require.NoError(t, err)

	var events []ProgressEvent
	for ev := range progress {
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[0].Processed)
	assert.Equal(t, 3, events[1].Processed)
	assert.Equal(t, 3, events[1].Total)
}
