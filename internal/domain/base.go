package domain

import (
	"fmt"
	"time"
)

// Source identifies the kind of material a knowledge base was built from.
type Source string

const (
	SourceManual      Source = "manual"
	SourceChatHistory Source = "chat_history"
	SourceLorebook    Source = "lorebook"
	SourceNovel       Source = "novel"

	// SourceUnknown marks chunks whose stored provenance could not be parsed.
	// It is a reporting value only, never a valid ingestion source.
	SourceUnknown Source = "unknown"
)

// Scope is the ownership partition of a knowledge base. Each scope knows how
// to derive the collection id the vector backend is addressed with, which
// keeps the per-scope branching in one place.
type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeGlobal Scope = "global"
	ScopeChat   Scope = "chat"
	ScopeLegacy Scope = "legacy"
)

// CollectionID derives the vector-backend address for a base in this scope.
// Chat scope addresses the host-supplied conversation collection directly and
// legacy scope addresses the single pre-registry collection, so both ignore
// the base id.
func (s Scope) CollectionID(owner, baseID string) string {
	switch s {
	case ScopeChat, ScopeLegacy:
		return owner
	default:
		return fmt.Sprintf("%s_%s", owner, baseID)
	}
}

// GlobalOwner marks records owned by the shared global scope rather than a
// single character.
const GlobalOwner = "__global__"

// KnowledgeBase is a named, scoped logical collection of ingested text,
// backed by one vector-store collection.
type KnowledgeBase struct {
	ID        string
	Name      string
	Enabled   bool
	Owner     string
	Source    Source
	CreatedAt time.Time
}

// CollectionID resolves the backend collection for this record in the given
// scope.
func (b *KnowledgeBase) CollectionID(scope Scope) string {
	return scope.CollectionID(b.Owner, b.ID)
}

// NewKnowledgeBase creates a new enabled KnowledgeBase instance
func NewKnowledgeBase(id, name, owner string, source Source, createdAt time.Time) *KnowledgeBase {
	return &KnowledgeBase{
		ID:        id,
		Name:      name,
		Enabled:   true,
		Owner:     owner,
		Source:    source,
		CreatedAt: createdAt,
	}
}

// ValidateKnowledgeBase validates a KnowledgeBase instance
func ValidateKnowledgeBase(b *KnowledgeBase) error {
	if b == nil {
		return fmt.Errorf("knowledge base cannot be nil")
	}
	if b.ID == "" {
		return fmt.Errorf("knowledge base ID is required")
	}
	if b.Name == "" {
		return ErrEmptyBaseName
	}
	if !IsValidSource(b.Source) {
		return fmt.Errorf("knowledge base Source is invalid: %s", b.Source)
	}
	return nil
}

// IsValidSource checks if a Source is one of the known kinds
func IsValidSource(s Source) bool {
	switch s {
	case SourceManual, SourceChatHistory, SourceLorebook, SourceNovel:
		return true
	}
	return false
}

// IsValidScope checks if a Scope is one of the known partitions
func IsValidScope(s Scope) bool {
	switch s {
	case ScopeLocal, ScopeGlobal, ScopeChat, ScopeLegacy:
		return true
	}
	return false
}
