package domain

import "time"

// ChunkMeta is the tagged union of per-source chunk metadata. The vector
// backend is not trusted to echo structured metadata back, so every variant
// can round-trip through the flat map stored alongside a vector and through
// the provenance prefix embedded in the chunk text itself.
type ChunkMeta interface {
	Source() Source
	// Map flattens the variant for storage-side metadata.
	Map() map[string]any
}

// ManualMeta tags chunks ingested from free-form user text.
type ManualMeta struct {
	SourceName string
	IngestedAt time.Time
	Part       int
}

func (m ManualMeta) Source() Source { return SourceManual }

func (m ManualMeta) Map() map[string]any {
	return map[string]any{
		"source":      string(SourceManual),
		"source_name": m.SourceName,
		"ingested_at": m.IngestedAt.UTC().Format(time.RFC3339),
		"part":        m.Part,
	}
}

// ChatMeta tags chunks cut from one chat message. Floor is the message index
// within the conversation.
type ChatMeta struct {
	SourceName string
	Floor      int
	FromUser   bool
	Part       int
}

func (m ChatMeta) Source() Source { return SourceChatHistory }

func (m ChatMeta) Map() map[string]any {
	return map[string]any{
		"source":      string(SourceChatHistory),
		"source_name": m.SourceName,
		"floor":       m.Floor,
		"from_user":   m.FromUser,
		"part":        m.Part,
	}
}

// LorebookMeta tags chunks cut from one lorebook entry.
type LorebookMeta struct {
	Book  string
	Entry string
	Part  int
}

func (m LorebookMeta) Source() Source { return SourceLorebook }

func (m LorebookMeta) Map() map[string]any {
	return map[string]any{
		"source": string(SourceLorebook),
		"book":   m.Book,
		"entry":  m.Entry,
		"part":   m.Part,
	}
}

// NovelMeta tags chunks cut from long-form fiction, positioned by the volume
// and chapter headings the chunker detected.
type NovelMeta struct {
	SourceName string
	Volume     string
	Chapter    string
	Section    int
}

func (m NovelMeta) Source() Source { return SourceNovel }

func (m NovelMeta) Map() map[string]any {
	return map[string]any{
		"source":      string(SourceNovel),
		"source_name": m.SourceName,
		"volume":      m.Volume,
		"chapter":     m.Chapter,
		"section":     m.Section,
	}
}

// UnknownMeta is the fail-closed variant used when a stored chunk's wrapper
// cannot be parsed back into one of the structured kinds.
type UnknownMeta struct{}

func (m UnknownMeta) Source() Source { return SourceUnknown }

func (m UnknownMeta) Map() map[string]any {
	return map[string]any{"source": string(SourceUnknown)}
}
