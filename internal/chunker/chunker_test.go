package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codebase-rag/internal/config"
	"codebase-rag/internal/models"
)

func newChunker(maxSize, overlap int, seps ...string) *Chunker {
	return New(config.ChunkingConfig{
		MaxChunkSize:      maxSize,
		OverlapSize:       overlap,
		SeparatorPriority: seps,
	})
}

func doc(content string) models.Document {
	return models.Document{Path: "src/main.go", Content: content}
}

func TestChunkShortDocumentYieldsOne(t *testing.T) {
	chunks := newChunker(1000, 200).Chunk(doc("package main\n\nfunc main() {}\n"))
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len("package main\n\nfunc main() {}\n"), chunks[0].EndOffset)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "src/main.go", chunks[0].SourcePath)
}

func TestChunkBlankDocumentYieldsNone(t *testing.T) {
	assert.Empty(t, newChunker(1000, 200).Chunk(doc("")))
	assert.Empty(t, newChunker(1000, 200).Chunk(doc("   \n\t\n")))
}

func TestChunkOffsetsWithoutSeparators(t *testing.T) {
	// 2400 characters with no structural boundary forces hard cuts
	chunks := newChunker(1000, 200).Chunk(doc(strings.Repeat("a", 2400)))
	require.Len(t, chunks, 3)

	type span struct{ start, end int }
	want := []span{{0, 1000}, {800, 1800}, {1600, 2400}}
	for i, w := range want {
		assert.Equal(t, w.start, chunks[i].StartOffset, "chunk %d start", i)
		assert.Equal(t, w.end, chunks[i].EndOffset, "chunk %d end", i)
		assert.Equal(t, i, chunks[i].Index)
	}
}

func TestChunkSnapsToHighestPrioritySeparator(t *testing.T) {
	// blank line at offset 70, line breaks elsewhere; the first cut
	// should land just after the blank line, not at the size limit
	content := strings.Repeat("x", 70) + "\n\n" + strings.Repeat("y", 30) + "\n" + strings.Repeat("z", 47)
	chunks := newChunker(100, 20, "\n\n", "\n", " ").Chunk(doc(content))
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, 72, chunks[0].EndOffset)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "\n\n"))
	assert.Equal(t, 52, chunks[1].StartOffset)
}

func TestChunkFallsBackToLowerPrioritySeparator(t *testing.T) {
	// no blank lines at all: the "\n" separator must be used
	content := strings.Repeat(strings.Repeat("w", 24)+"\n", 20)
	chunks := newChunker(100, 20, "\n\n", "\n").Chunk(doc(content))
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(ch.Text, "\n"), "chunk should end at a line break")
	}
}

func TestChunkSizeAndOverlapInvariants(t *testing.T) {
	contents := []string{
		strings.Repeat("a", 2400),
		strings.Repeat("line one\nline two\n\n", 300),
		strings.Repeat("word ", 1000),
		"short file",
	}
	for _, content := range contents {
		chunks := newChunker(1000, 200).Chunk(doc(content))
		for i, ch := range chunks {
			assert.LessOrEqual(t, ch.EndOffset-ch.StartOffset, 1000)
			assert.Equal(t, content[ch.StartOffset:ch.EndOffset], ch.Text)
			if i > 0 {
				prev := chunks[i-1]
				// consecutive chunks overlap by exactly the configured size
				assert.Equal(t, 200, prev.EndOffset-ch.StartOffset)
				assert.Equal(t, prev.Text[len(prev.Text)-200:], ch.Text[:200])
			}
		}
	}
}

func TestChunkRoundTripReconstruction(t *testing.T) {
	contents := []string{
		strings.Repeat("a", 2400),
		strings.Repeat("func handler() {\n\treturn\n}\n\n", 200),
		strings.Repeat("alpha beta gamma ", 500),
	}
	for _, content := range contents {
		chunker := newChunker(1000, 200)
		chunks := chunker.Chunk(doc(content))
		require.NotEmpty(t, chunks)

		var b strings.Builder
		b.WriteString(chunks[0].Text)
		for _, ch := range chunks[1:] {
			b.WriteString(ch.Text[200:])
		}
		assert.Equal(t, content, b.String())
	}
}

func TestChunkMultiByteRunesStayIntact(t *testing.T) {
	// separator-free CJK text: every hard cut and overlap stride must
	// land on a rune boundary
	content := strings.Repeat("界", 400)
	chunks := newChunker(1000, 200).Chunk(doc(content))
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Text), "chunk %d is not valid UTF-8", i)
		assert.LessOrEqual(t, ch.EndOffset-ch.StartOffset, 1000)
		assert.Equal(t, content[ch.StartOffset:ch.EndOffset], ch.Text)
		if i > 0 {
			prev := chunks[i-1]
			overlap := prev.EndOffset - ch.StartOffset
			assert.Greater(t, overlap, 0)
			assert.LessOrEqual(t, overlap, 200+utf8.UTFMax)
			assert.Equal(t, prev.Text[len(prev.Text)-overlap:], ch.Text[:overlap])
		}
	}
	last := chunks[len(chunks)-1]
	assert.Equal(t, len(content), last.EndOffset)
}

func TestChunkMixedScriptRoundTrip(t *testing.T) {
	content := strings.Repeat("код: значение\nデータ処理を行う\n", 120)
	chunks := newChunker(300, 60).Chunk(doc(content))
	require.Greater(t, len(chunks), 1)

	var b strings.Builder
	b.WriteString(chunks[0].Text)
	for i := 1; i < len(chunks); i++ {
		overlap := chunks[i-1].EndOffset - chunks[i].StartOffset
		b.WriteString(chunks[i].Text[overlap:])
	}
	assert.Equal(t, content, b.String())
	for i, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Text), "chunk %d is not valid UTF-8", i)
	}
}

func TestChunkDegenerateConfigRepaired(t *testing.T) {
	// overlap >= max size would stall the window; New repairs it
	chunks := newChunker(100, 100).Chunk(doc(strings.Repeat("q", 500)))
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.Equal(t, 500, last.EndOffset)
}
