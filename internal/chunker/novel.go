package chunker

import (
	"regexp"
	"strings"

	"github.com/memoria-ai/memoria/internal/domain"
)

// Heading patterns cover both CJK numbered headings and the usual English
// keywords. A line that matches flushes the accumulated buffer before the
// new label takes effect.
var (
	volumeCN  = regexp.MustCompile(`^\s*(第[0-9零一二三四五六七八九十百千两]+卷.*)$`)
	chapterCN = regexp.MustCompile(`^\s*(第[0-9零一二三四五六七八九十百千两]+[章节回].*)$`)
	volumeEN  = regexp.MustCompile(`(?i)^\s*((?:volume|book)\s+[0-9ivxlc]+.*)$`)
	chapterEN = regexp.MustCompile(`(?i)^\s*(chapter\s+[0-9ivxlc]+.*)$`)
)

// Novel cuts volume/chapter-aware windows: the text is scanned line by line,
// and the buffer accumulated since the previous heading is flushed into
// windows whenever a heading boundary is crossed. If no heading ever matches
// and nothing was produced, the whole text is cut flat so the caller still
// gets chunks for unstructured fiction.
func Novel(text, sourceName string, opts Options) []domain.Chunk {
	if opts.ChunkSize <= 0 || strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		chunks       []domain.Chunk
		buf          []string
		volume       string
		chapter      string
		headingFound bool
	)

	flush := func() {
		joined := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if joined == "" {
			return
		}
		for i, w := range windows(joined, opts) {
			meta := domain.NovelMeta{
				SourceName: sourceName,
				Volume:     volume,
				Chapter:    chapter,
				Section:    i,
			}
			chunks = append(chunks, domain.Chunk{
				Text: Wrap(domain.SourceNovel, novelProvenance(meta), w),
				Meta: meta,
			})
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if m := firstMatch(line, volumeCN, volumeEN); m != "" {
			flush()
			volume = m
			chapter = ""
			headingFound = true
			continue
		}
		if m := firstMatch(line, chapterCN, chapterEN); m != "" {
			flush()
			chapter = m
			headingFound = true
			continue
		}
		buf = append(buf, line)
	}
	flush()

	if !headingFound && len(chunks) == 0 {
		volume, chapter = "", ""
		buf = []string{text}
		flush()
	}

	return chunks
}

func firstMatch(line string, patterns ...*regexp.Regexp) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
