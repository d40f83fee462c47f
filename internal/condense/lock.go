package condense

import "sync"

// SessionLock optionally pins the active collection id. While held, both
// ingestion and query bypass normal scope resolution and use the pinned
// collection until Release is called.
type SessionLock struct {
	mu           sync.Mutex
	collectionID string
	held         bool
}

func NewSessionLock() *SessionLock {
	return &SessionLock{}
}

// Acquire pins collectionID. Re-acquiring replaces the previous pin.
func (l *SessionLock) Acquire(collectionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.collectionID = collectionID
	l.held = collectionID != ""
}

func (l *SessionLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.collectionID = ""
	l.held = false
}

// Current reports the pinned collection, if any.
func (l *SessionLock) Current() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collectionID, l.held
}
