package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memoria-ai/memoria/internal/domain"
)

// JobState is the lifecycle of an async ingestion job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobStatus is the observable state of one async job.
type JobStatus struct {
	JobID        string    `json:"job_id"`
	State        JobState  `json:"state"`
	Processed    int       `json:"processed"`
	Total        int       `json:"total"`
	CollectionID string    `json:"collection_id,omitempty"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

// Manager runs ingestions asynchronously and tracks their status in memory.
// Durable resumability still comes from the checkpoint store; the manager
// only answers status polls for jobs started by this process.
type Manager struct {
	orch *Orchestrator

	mu   sync.RWMutex
	jobs map[string]*JobStatus
}

func NewManager(orch *Orchestrator) *Manager {
	return &Manager{orch: orch, jobs: make(map[string]*JobStatus)}
}

// Start launches req in the background and returns its job id immediately.
// The job runs detached from the caller's request context.
func (m *Manager) Start(req Request) string {
	jobID := uuid.NewString()
	req.JobID = jobID

	m.mu.Lock()
	m.jobs[jobID] = &JobStatus{JobID: jobID, State: JobRunning, StartedAt: time.Now().UTC()}
	m.mu.Unlock()

	go func() {
		progress := make(chan ProgressEvent, 1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range progress {
				m.update(jobID, func(s *JobStatus) {
					s.Processed = ev.Processed
					s.Total = ev.Total
				})
			}
		}()

		res, err := m.orch.Ingest(context.Background(), req, progress)
		close(progress)
		<-done

		m.update(jobID, func(s *JobStatus) {
			s.FinishedAt = time.Now().UTC()
			if err != nil {
				s.State = JobFailed
				s.Error = err.Error()
				return
			}
			s.State = JobCompleted
			s.Processed = res.Count
			s.Total = res.Count
			s.CollectionID = res.CollectionID
		})
	}()

	return jobID
}

// Status returns a copy of the job's state.
func (m *Manager) Status(jobID string) (*JobStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Manager) update(jobID string, fn func(*JobStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.jobs[jobID]; ok {
		fn(s)
	}
}
