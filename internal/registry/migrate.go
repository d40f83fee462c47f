package registry

import (
	"fmt"
	"strings"

	"github.com/memoria-ai/memoria/internal/domain"
)

// CurrentSettingsVersion gates the one-time reclassification pass. Records
// written before source tagging existed carry no usable Source field, so a
// stale document gets every record's source recomputed from its display
// name.
const CurrentSettingsVersion = 2

// migrateLocked reclassifies every record when the document version is
// stale and bumps the version. Running it at the current version is a no-op.
// Caller must not hold s.mu (called during construction, before the service
// is shared).
func (s *Service) migrateLocked() bool {
	if s.doc.Version >= CurrentSettingsVersion {
		return false
	}

	for _, recs := range s.doc.Local {
		for _, rec := range recs {
			rec.Source = ClassifyName(rec.Name)
		}
	}
	for _, rec := range s.doc.Global {
		rec.Source = ClassifyName(rec.Name)
	}

	s.doc.Version = CurrentSettingsVersion
	return true
}

// ClassifyName infers a record's source kind from its display-name
// conventions.
func ClassifyName(name string) domain.Source {
	switch {
	case strings.Contains(name, "楼"):
		return domain.SourceChatHistory
	case strings.HasPrefix(name, "lorebook:") || strings.Contains(name, "世界书"):
		return domain.SourceLorebook
	case strings.HasPrefix(name, "novel:") || strings.Contains(name, "小说"):
		return domain.SourceNovel
	default:
		return domain.SourceManual
	}
}

// ChatRangeName builds the display name for a condensed chat bucket. The
// format doubles as the chat-history marker ClassifyName keys on.
func ChatRangeName(character string, startFloor, endFloor int) string {
	return fmt.Sprintf("%s: %d楼-%d楼", character, startFloor, endFloor)
}
