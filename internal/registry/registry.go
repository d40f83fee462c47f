// Package registry owns the knowledge-base records and the shared settings
// document they live in. All mutation is synchronous in memory followed by a
// debounced save of the whole document; last writer wins.
package registry

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/vector"
)

// SettingsStore persists the raw settings document.
type SettingsStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, doc []byte) error
}

// DefaultSaveDelay is how long mutations are coalesced before a save.
const DefaultSaveDelay = 2 * time.Second

// Service is the knowledge-base registry.
type Service struct {
	mu        sync.Mutex
	doc       *document
	store     SettingsStore
	vectors   vector.Store
	saveDelay time.Duration
	saveTimer *time.Timer
	now       func() time.Time
	newID     func() string
}

// NewService loads the settings document, runs the schema migration if the
// persisted version is stale, and returns the ready registry.
func NewService(ctx context.Context, store SettingsStore, vectors vector.Store) (*Service, error) {
	s := &Service{
		store:     store,
		vectors:   vectors,
		saveDelay: DefaultSaveDelay,
		now:       time.Now,
		newID:     uuid.NewString,
	}

	raw, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.doc = emptyDocument()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, s.doc); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternal, "corrupt settings document", err)
		}
	}
	if s.doc.Local == nil {
		s.doc.Local = make(map[string][]*record)
	}

	if migrated := s.migrateLocked(); migrated {
		if err := s.saveNow(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add creates a new knowledge base, always local to the owner.
func (s *Service) Add(ctx context.Context, owner, name string, source domain.Source) (*domain.KnowledgeBase, error) {
	if name == "" {
		return nil, domain.ErrEmptyBaseName
	}
	if !domain.IsValidSource(source) {
		return nil, domain.ErrInvalidSource
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &record{
		ID:        s.newID(),
		Name:      name,
		Enabled:   true,
		Owner:     owner,
		Source:    source,
		CreatedAt: s.now().UTC(),
	}
	s.doc.Local[owner] = append(s.doc.Local[owner], rec)
	s.scheduleSaveLocked()
	return rec.toDomain(), nil
}

// ResolveOrCreate returns the local base matching the display name, creating
// it when absent. Name uniqueness is advisory: the first match wins.
func (s *Service) ResolveOrCreate(ctx context.Context, owner, name string, source domain.Source) (*domain.KnowledgeBase, error) {
	if name == "" {
		return nil, domain.ErrEmptyBaseName
	}

	s.mu.Lock()
	for _, rec := range s.doc.Local[owner] {
		if rec.Name == name {
			s.mu.Unlock()
			return rec.toDomain(), nil
		}
	}
	s.mu.Unlock()

	return s.Add(ctx, owner, name, source)
}

// Remove purges the backend collection first and deletes the record only if
// the purge succeeds; otherwise the record is retained and the failure
// reported, so no registry entry ever points at purged data and no vectors
// outlive their entry.
func (s *Service) Remove(ctx context.Context, id string, scope domain.Scope, owner string) error {
	rec, err := s.find(id, scope, owner)
	if err != nil {
		return err
	}

	if err := s.vectors.Purge(ctx, scope.CollectionID(rec.Owner, rec.ID)); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeBackend, "collection purge failed, record retained", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if scope == domain.ScopeGlobal {
		s.doc.Global = deleteRecord(s.doc.Global, id)
	} else {
		s.doc.Local[owner] = deleteRecord(s.doc.Local[owner], id)
	}
	s.scheduleSaveLocked()
	return nil
}

// Toggle flips a base's enabled flag and returns the new state.
func (s *Service) Toggle(ctx context.Context, id string, scope domain.Scope, owner string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.findLocked(id, scope, owner)
	if rec == nil {
		return false, domain.ErrBaseNotFound
	}
	rec.Enabled = !rec.Enabled
	s.scheduleSaveLocked()
	return rec.Enabled, nil
}

// Rename changes a base's display name. Empty names are rejected before any
// state is touched.
func (s *Service) Rename(ctx context.Context, id, newName string, scope domain.Scope, owner string) error {
	if newName == "" {
		return domain.ErrEmptyBaseName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.findLocked(id, scope, owner)
	if rec == nil {
		return domain.ErrBaseNotFound
	}
	rec.Name = newName
	s.scheduleSaveLocked()
	return nil
}

// Move transfers a base between the local and global scopes atomically,
// stamping the owner on records that predate ownership tagging.
func (s *Service) Move(ctx context.Context, id string, fromScope domain.Scope, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch fromScope {
	case domain.ScopeLocal:
		rec := findRecord(s.doc.Local[owner], id)
		if rec == nil {
			return domain.ErrBaseNotFound
		}
		if rec.Owner == "" {
			rec.Owner = owner
		}
		s.doc.Local[owner] = deleteRecord(s.doc.Local[owner], id)
		s.doc.Global = append(s.doc.Global, rec)
	case domain.ScopeGlobal:
		rec := findRecord(s.doc.Global, id)
		if rec == nil {
			return domain.ErrBaseNotFound
		}
		if rec.Owner == "" || rec.Owner == domain.GlobalOwner {
			rec.Owner = owner
		}
		s.doc.Global = deleteRecord(s.doc.Global, id)
		s.doc.Local[rec.Owner] = append(s.doc.Local[rec.Owner], rec)
	default:
		return domain.ErrInvalidScope
	}
	s.scheduleSaveLocked()
	return nil
}

// Get returns one base by id and scope.
func (s *Service) Get(id string, scope domain.Scope, owner string) (*domain.KnowledgeBase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.findLocked(id, scope, owner)
	if rec == nil {
		return nil, domain.ErrBaseNotFound
	}
	return rec.toDomain(), nil
}

// ListLocal returns the owner's local bases.
func (s *Service) ListLocal(owner string) []*domain.KnowledgeBase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return toDomainList(s.doc.Local[owner])
}

// ListGlobal returns the shared global bases.
func (s *Service) ListGlobal() []*domain.KnowledgeBase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return toDomainList(s.doc.Global)
}

// ListMerged overlays the owner's local bases onto the globals; on a name
// collision the local record wins.
func (s *Service) ListMerged(owner string) []*domain.KnowledgeBase {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName := make(map[string]bool)
	var out []*domain.KnowledgeBase
	for _, rec := range s.doc.Local[owner] {
		byName[rec.Name] = true
		out = append(out, rec.toDomain())
	}
	for _, rec := range s.doc.Global {
		if byName[rec.Name] {
			continue
		}
		out = append(out, rec.toDomain())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Flush writes any pending changes immediately; used on shutdown.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.mu.Unlock()
	return s.saveNow(ctx)
}

func (s *Service) find(id string, scope domain.Scope, owner string) (*record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.findLocked(id, scope, owner)
	if rec == nil {
		return nil, domain.ErrBaseNotFound
	}
	return rec, nil
}

func (s *Service) findLocked(id string, scope domain.Scope, owner string) *record {
	if scope == domain.ScopeGlobal {
		return findRecord(s.doc.Global, id)
	}
	return findRecord(s.doc.Local[owner], id)
}

// scheduleSaveLocked coalesces bursts of mutations into one save. Callers
// hold s.mu.
func (s *Service) scheduleSaveLocked() {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.saveDelay, func() {
		if err := s.saveNow(context.Background()); err != nil {
			log.Printf("registry: debounced save failed: %v", err)
		}
	})
}

func (s *Service) saveNow(ctx context.Context) error {
	s.mu.Lock()
	raw, err := json.Marshal(s.doc)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.store.Save(ctx, raw)
}

func findRecord(recs []*record, id string) *record {
	for _, rec := range recs {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func deleteRecord(recs []*record, id string) []*record {
	out := recs[:0]
	for _, rec := range recs {
		if rec.ID != id {
			out = append(out, rec)
		}
	}
	return out
}

func toDomainList(recs []*record) []*domain.KnowledgeBase {
	out := make([]*domain.KnowledgeBase, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toDomain())
	}
	return out
}
