package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/ingest"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockCheckpointLister is a mock implementation of CheckpointLister
type MockCheckpointLister struct {
	mock.Mock
}

func (m *MockCheckpointLister) ListResumable(ctx context.Context, cutoff time.Time, limit int) ([]*domain.IngestCheckpoint, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IngestCheckpoint), args.Error(1)
}

// MockResumer is a mock implementation of Resumer
type MockResumer struct {
	mock.Mock
}

func (m *MockResumer) Resume(ctx context.Context, cp *domain.IngestCheckpoint) (*ingest.Result, error) {
	args := m.Called(ctx, cp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.Result), args.Error(1)
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestResumeWorker_NoStaleCheckpoints(t *testing.T) {
	mockLister := new(MockCheckpointLister)
	mockResumer := new(MockResumer)

	mockLister.On("ListResumable", mock.Anything, mock.Anything, DefaultResumeBatch).
		Return([]*domain.IngestCheckpoint{}, nil)

	worker := NewResumeWorker(mockLister, mockResumer)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockLister.AssertExpectations(t)
	mockResumer.AssertNotCalled(t, "Resume", mock.Anything, mock.Anything)
}

func TestResumeWorker_ResumesStaleJob(t *testing.T) {
	mockLister := new(MockCheckpointLister)
	mockResumer := new(MockResumer)

	cp := &domain.IngestCheckpoint{
		JobID:          "job-1",
		CollectionID:   "alice_kb1",
		ProcessedIndex: 20,
		Total:          50,
	}

	mockLister.On("ListResumable", mock.Anything, mock.Anything, DefaultResumeBatch).
		Return([]*domain.IngestCheckpoint{cp}, nil)
	mockResumer.On("Resume", mock.Anything, cp).
		Return(&ingest.Result{Count: 50, CollectionID: "alice_kb1"}, nil)

	worker := NewResumeWorker(mockLister, mockResumer)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockLister.AssertExpectations(t)
	mockResumer.AssertExpectations(t)
}

func TestResumeWorker_FailureDoesNotStopBatch(t *testing.T) {
	mockLister := new(MockCheckpointLister)
	mockResumer := new(MockResumer)

	cp1 := &domain.IngestCheckpoint{JobID: "job-1", ProcessedIndex: 10, Total: 50}
	cp2 := &domain.IngestCheckpoint{JobID: "job-2", ProcessedIndex: 0, Total: 30}

	mockLister.On("ListResumable", mock.Anything, mock.Anything, DefaultResumeBatch).
		Return([]*domain.IngestCheckpoint{cp1, cp2}, nil)
	mockResumer.On("Resume", mock.Anything, cp1).Return(nil, errors.New("backend down"))
	mockResumer.On("Resume", mock.Anything, cp2).
		Return(&ingest.Result{Count: 30}, nil)

	worker := NewResumeWorker(mockLister, mockResumer)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockResumer.AssertExpectations(t)
}

func TestResumeWorker_CancelledResumeIsNotAFailure(t *testing.T) {
	mockLister := new(MockCheckpointLister)
	mockResumer := new(MockResumer)

	cp := &domain.IngestCheckpoint{JobID: "job-1", ProcessedIndex: 10, Total: 50}

	mockLister.On("ListResumable", mock.Anything, mock.Anything, DefaultResumeBatch).
		Return([]*domain.IngestCheckpoint{cp}, nil)
	mockResumer.On("Resume", mock.Anything, cp).Return(nil, domain.ErrIngestionCancelled)

	worker := NewResumeWorker(mockLister, mockResumer)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockResumer.AssertExpectations(t)
}

func TestResumeWorker_ListError(t *testing.T) {
	mockLister := new(MockCheckpointLister)
	mockResumer := new(MockResumer)

	mockLister.On("ListResumable", mock.Anything, mock.Anything, DefaultResumeBatch).
		Return(nil, errors.New("database error"))

	worker := NewResumeWorker(mockLister, mockResumer)
	err := worker.ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list resumable checkpoints")
	mockLister.AssertExpectations(t)
}
