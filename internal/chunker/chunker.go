// Package chunker turns raw source text into ordered, tag-wrapped windows
// ready for embedding. Each source kind has its own strategy; all of them
// share the same fixed-size overlapping window cut.
package chunker

import (
	"fmt"
	"strings"
	"time"

	"github.com/memoria-ai/memoria/internal/domain"
)

// Options controls window sizing for all strategies. Sizes are rune counts.
type Options struct {
	ChunkSize int
	Overlap   int
}

// DefaultOptions provides sane defaults for chunking.
func DefaultOptions() Options {
	return Options{
		ChunkSize: 1000,
		Overlap:   100,
	}
}

// windows cuts text into overlapping fixed-size windows. The start offset
// advances by ChunkSize-Overlap until the text is exhausted; the final window
// is the one whose end reaches the last rune. ChunkSize <= 0 or empty input
// yields no windows, which callers treat as a successful no-op.
func windows(text string, opts Options) []string {
	if opts.ChunkSize <= 0 {
		return nil
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := opts.ChunkSize - opts.Overlap
	if step <= 0 {
		step = opts.ChunkSize
	}

	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + opts.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end >= len(runes) {
			break
		}
	}
	return out
}

// Manual cuts flat windows over the full text, stamped with the ingestion
// time.
func Manual(text, sourceName string, ingestedAt time.Time, opts Options) []domain.Chunk {
	parts := windows(strings.TrimSpace(text), opts)
	chunks := make([]domain.Chunk, 0, len(parts))
	for i, w := range parts {
		meta := domain.ManualMeta{
			SourceName: sourceName,
			IngestedAt: ingestedAt,
			Part:       i,
		}
		chunks = append(chunks, domain.Chunk{
			Text: Wrap(domain.SourceManual, manualProvenance(meta), w),
			Meta: meta,
		})
	}
	return chunks
}

// ChatMessage is one message of a conversation, indexed by floor.
type ChatMessage struct {
	Floor    int    `json:"floor"`
	FromUser bool   `json:"from_user"`
	Text     string `json:"text"`
}

// ChatHistory cuts windows per message rather than over the joined corpus,
// so a chunk never straddles two floors.
func ChatHistory(msgs []ChatMessage, sourceName string, opts Options) []domain.Chunk {
	var chunks []domain.Chunk
	for _, msg := range msgs {
		for i, w := range windows(strings.TrimSpace(msg.Text), opts) {
			meta := domain.ChatMeta{
				SourceName: sourceName,
				Floor:      msg.Floor,
				FromUser:   msg.FromUser,
				Part:       i,
			}
			chunks = append(chunks, domain.Chunk{
				Text: Wrap(domain.SourceChatHistory, chatProvenance(meta), w),
				Meta: meta,
			})
		}
	}
	return chunks
}

// LorebookEntry is one named entry of a lorebook.
type LorebookEntry struct {
	Book  string `json:"book,omitempty"`
	Entry string `json:"entry,omitempty"`
	Text  string `json:"text"`
}

// Lorebook cuts windows per entry, tagged with book and entry names.
func Lorebook(entries []LorebookEntry, opts Options) []domain.Chunk {
	var chunks []domain.Chunk
	for _, entry := range entries {
		for i, w := range windows(strings.TrimSpace(entry.Text), opts) {
			meta := domain.LorebookMeta{
				Book:  entry.Book,
				Entry: entry.Entry,
				Part:  i,
			}
			chunks = append(chunks, domain.Chunk{
				Text: Wrap(domain.SourceLorebook, lorebookProvenance(meta), w),
				Meta: meta,
			})
		}
	}
	return chunks
}

func manualProvenance(m domain.ManualMeta) string {
	return fmt.Sprintf("[manual | name:%s | ingested:%s | part:%d]",
		m.SourceName, m.IngestedAt.UTC().Format(time.RFC3339), m.Part)
}

func chatProvenance(m domain.ChatMeta) string {
	from := "char"
	if m.FromUser {
		from = "user"
	}
	return fmt.Sprintf("[chat | floor:%d | from:%s | part:%d]", m.Floor, from, m.Part)
}

func lorebookProvenance(m domain.LorebookMeta) string {
	return fmt.Sprintf("[lorebook | book:%s | entry:%s | part:%d]", m.Book, m.Entry, m.Part)
}

func novelProvenance(m domain.NovelMeta) string {
	return fmt.Sprintf("[novel | volume:%s | chapter:%s | section:%d]", m.Volume, m.Chapter, m.Section)
}
