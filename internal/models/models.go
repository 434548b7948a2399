package models

// Document is a source file that passed ingestion filtering.
type Document struct {
	Path     string // relative to the scanned root
	Content  string
	Language string // inferred from the file extension
}

// Chunk is a contiguous slice of a document's content.
// Offsets address the original content, end exclusive.
type Chunk struct {
	Text         string
	SourcePath   string
	StartOffset  int
	EndOffset    int
	Index        int // 0-based position within the document
	CollectionID string
}

// SearchResult is one retrieved chunk with its distance to the query.
type SearchResult struct {
	Text       string
	SourcePath string
	ChunkIndex int
	Distance   float32 // cosine distance, lower is closer
}

// ContextBundle is the ranked, deduplicated retrieval output handed
// to the answer generator.
type ContextBundle struct {
	Results []SearchResult
	Context string // rendered context with citation markers
}

// Empty reports whether the bundle holds no retrieved chunks.
func (b ContextBundle) Empty() bool {
	return len(b.Results) == 0
}

// Sources returns the distinct source paths in result order.
func (b ContextBundle) Sources() []string {
	seen := make(map[string]bool, len(b.Results))
	var paths []string
	for _, r := range b.Results {
		if !seen[r.SourcePath] {
			seen[r.SourcePath] = true
			paths = append(paths, r.SourcePath)
		}
	}
	return paths
}

// IngestReport summarizes one ingestion run so partial success is
// observable rather than hidden.
type IngestReport struct {
	CollectionID string
	Scanned      int // files visited during the walk
	Filtered     int // files that passed filtering
	Chunked      int // chunks produced
	Embedded     int // chunks embedded and upserted
	Failed       int // source files that were not indexed
	FailedPaths  []string
}

// PromptResponse is the generator's answer over a retrieved bundle.
type PromptResponse struct {
	Query   string
	Sources []string
	Content string
}
