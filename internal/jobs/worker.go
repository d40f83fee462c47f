// Package jobs runs the background loops that keep ingestion honest:
// a generic polling worker and the checkpoint-resume processor that
// restarts ingestions interrupted mid-batch.
package jobs

import (
	"context"
	"log"
	"time"
)

// JobProcessor is one unit of background work driven by the polling loop.
// ResumeWorker is the only implementation today; condensation sweeps run on
// their own ticker inside the condense package.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker polls a JobProcessor at a fixed interval until stopped. Each tick
// runs at most one ProcessJobs pass; a failed pass is logged and retried on
// the next tick rather than aborting the loop.
type Worker struct {
	processor    JobProcessor
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
}

func NewWorker(processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		processor:    processor,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start runs the polling loop until the context is cancelled or Stop is
// called. It blocks; callers run it in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("jobs: checkpoint poll loop started, interval %v", w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("jobs: poll loop stopped, context cancelled")
			return
		case <-w.stopChan:
			log.Println("jobs: poll loop stopped")
			return
		case <-ticker.C:
			if err := w.processor.ProcessJobs(ctx); err != nil {
				log.Printf("jobs: poll pass failed: %v", err)
			}
		}
	}
}

// Stop signals the loop to exit and waits for the in-flight pass to finish.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Println("jobs: worker drained")
}
