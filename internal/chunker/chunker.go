package chunker

import (
	"strings"
	"unicode/utf8"

	"codebase-rag/internal/config"
	"codebase-rag/internal/models"
)

// Chunker splits document content into bounded, overlapping chunks.
//
// Chunks are addressed by byte offsets into the original content. The
// first chunk starts at 0; every later chunk starts overlapSize bytes
// before its predecessor's end, pulled back to the nearest rune start,
// so consecutive chunks share a byte-identical overlap region and
// concatenating chunk texts with the overlaps removed reconstructs the
// document exactly. Chunk ends snap to the highest-priority separator
// found inside the window; a hard cut at the nearest rune boundary is
// the guaranteed fallback, so chunking never fails and never splits a
// multi-byte rune.
type Chunker struct {
	maxChunkSize int
	overlapSize  int
	separators   []string
}

func New(cfg config.ChunkingConfig) *Chunker {
	maxSize := cfg.MaxChunkSize
	if maxSize <= 0 {
		maxSize = 1000
	}
	overlap := cfg.OverlapSize
	if overlap < 0 || overlap >= maxSize {
		overlap = maxSize / 5
	}
	seps := cfg.SeparatorPriority
	if len(seps) == 0 {
		seps = []string{"\n\n", "\n", " "}
	}
	return &Chunker{maxChunkSize: maxSize, overlapSize: overlap, separators: seps}
}

// Chunk splits doc into ordered chunks. A blank document yields none;
// a document no longer than the chunk limit yields exactly one chunk
// spanning [0, len).
func (c *Chunker) Chunk(doc models.Document) []models.Chunk {
	content := doc.Content
	if strings.TrimSpace(content) == "" {
		return nil
	}
	n := len(content)
	if n <= c.maxChunkSize {
		return []models.Chunk{{
			Text:        content,
			SourcePath:  doc.Path,
			StartOffset: 0,
			EndOffset:   n,
			Index:       0,
		}}
	}

	var chunks []models.Chunk
	start := 0
	for idx := 0; ; idx++ {
		end := start + c.maxChunkSize
		if end >= n {
			end = n
		} else {
			end = c.cutPoint(content, start, end)
		}
		chunks = append(chunks, models.Chunk{
			Text:        content[start:end],
			SourcePath:  doc.Path,
			StartOffset: start,
			EndOffset:   end,
			Index:       idx,
		})
		if end >= n {
			break
		}
		next := snapToRuneStart(content, end-c.overlapSize)
		if next <= start {
			// degenerate overlap config; forward progress wins
			next = end - c.overlapSize
		}
		start = next
	}
	return chunks
}

// snapToRuneStart moves i back to the nearest rune boundary in s.
// i must be a valid index into s.
func snapToRuneStart(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// cutPoint picks the end offset for a chunk starting at start, with
// limit = start + maxChunkSize. It tries each separator in priority
// order and snaps to the last occurrence whose split point still lies
// past the overlap region, guaranteeing forward progress. When no
// separator fits, the limit itself is the cut.
func (c *Chunker) cutPoint(content string, start, limit int) int {
	// a split at or before start+overlapSize would make the next
	// chunk start at or before this one
	lo := start + c.overlapSize + 1
	if lo >= limit {
		return limit
	}
	window := content[lo:limit]
	for _, sep := range c.separators {
		if sep == "" {
			break
		}
		// a match inside valid UTF-8 always sits on a rune boundary
		if pos := strings.LastIndex(window, sep); pos >= 0 {
			return lo + pos + len(sep)
		}
	}
	if cut := snapToRuneStart(content, limit); cut >= lo {
		return cut
	}
	return limit
}
