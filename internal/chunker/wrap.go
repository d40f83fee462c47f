package chunker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/memoria-ai/memoria/internal/domain"
)

// Wrap encloses a window in its source tag with a human-readable provenance
// line. The wrapper doubles as a side channel: the query orchestrator parses
// it back into structured metadata when the vector backend does not echo the
// stored metadata reliably.
func Wrap(source domain.Source, provenance, window string) string {
	return fmt.Sprintf("<%s>\n%s\n%s\n</%s>", source, provenance, window, source)
}

var (
	wrapperRE  = regexp.MustCompile(`(?s)^<([a-z_]+)>\n(\[[^\n]*\])\n(.*)\n</([a-z_]+)>$`)
	manualRE   = regexp.MustCompile(`^\[manual \| name:(.*?) \| ingested:(\S+) \| part:(\d+)\]$`)
	chatRE     = regexp.MustCompile(`^\[chat \| floor:(\d+) \| from:(user|char) \| part:(\d+)\]$`)
	lorebookRE = regexp.MustCompile(`^\[lorebook \| book:(.*?) \| entry:(.*?) \| part:(\d+)\]$`)
	novelRE    = regexp.MustCompile(`^\[novel \| volume:(.*?) \| chapter:(.*?) \| section:(\d+)\]$`)
)

// Parse recovers the inner window text and structured metadata from a stored
// wrapped chunk. It fails closed: anything that does not match a known
// wrapper comes back verbatim with UnknownMeta rather than an error.
func Parse(stored string) (string, domain.ChunkMeta) {
	m := wrapperRE.FindStringSubmatch(strings.TrimSpace(stored))
	if m == nil || m[1] != m[4] {
		return stored, domain.UnknownMeta{}
	}
	tag, provenance, body := m[1], m[2], m[3]

	switch domain.Source(tag) {
	case domain.SourceManual:
		if p := manualRE.FindStringSubmatch(provenance); p != nil {
			ingested, err := time.Parse(time.RFC3339, p[2])
			if err == nil {
				return body, domain.ManualMeta{
					SourceName: p[1],
					IngestedAt: ingested,
					Part:       atoi(p[3]),
				}
			}
		}
	case domain.SourceChatHistory:
		if p := chatRE.FindStringSubmatch(provenance); p != nil {
			return body, domain.ChatMeta{
				Floor:    atoi(p[1]),
				FromUser: p[2] == "user",
				Part:     atoi(p[3]),
			}
		}
	case domain.SourceLorebook:
		if p := lorebookRE.FindStringSubmatch(provenance); p != nil {
			return body, domain.LorebookMeta{
				Book:  p[1],
				Entry: p[2],
				Part:  atoi(p[3]),
			}
		}
	case domain.SourceNovel:
		if p := novelRE.FindStringSubmatch(provenance); p != nil {
			return body, domain.NovelMeta{
				Volume:  p[1],
				Chapter: p[2],
				Section: atoi(p[3]),
			}
		}
	}

	return stored, domain.UnknownMeta{}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
