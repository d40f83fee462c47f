package registry

import (
	"time"

	"github.com/memoria-ai/memoria/internal/domain"
)

// document is the persisted shape of the shared settings document.
type document struct {
	Version int                  `json:"settings_version"`
	Local   map[string][]*record `json:"local"`
	Global  []*record            `json:"global"`
}

func emptyDocument() *document {
	return &document{
		Version: CurrentSettingsVersion,
		Local:   make(map[string][]*record),
	}
}

// record is the persisted shape of one knowledge base.
type record struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Enabled   bool          `json:"enabled"`
	Owner     string        `json:"owner,omitempty"`
	Source    domain.Source `json:"source"`
	CreatedAt time.Time     `json:"created_at"`
}

func (r *record) toDomain() *domain.KnowledgeBase {
	return &domain.KnowledgeBase{
		ID:        r.ID,
		Name:      r.Name,
		Enabled:   r.Enabled,
		Owner:     r.Owner,
		Source:    r.Source,
		CreatedAt: r.CreatedAt,
	}
}
