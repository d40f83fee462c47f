package domain

import "time"

// IngestCheckpoint is the persisted progress of one ingestion run. It lets an
// interrupted run resume from the first unprocessed batch instead of from
// zero; it is deleted on successful completion.
type IngestCheckpoint struct {
	JobID          string
	CollectionID   string
	ProcessedIndex int
	Total          int
	Payload        []byte
	UpdatedAt      time.Time
}

// CondensationProgress tracks how far a conversation's history has been
// vectorized. LastProcessedFloor is monotonically non-decreasing: it advances
// only after a bucket's ingestion succeeds.
type CondensationProgress struct {
	ChatID             string
	LastProcessedFloor int
	UpdatedAt          time.Time
}
