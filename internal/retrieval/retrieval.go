// Package retrieval maps a query into the embedding space and
// assembles the ranked, citation-tagged context bundle.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"codebase-rag/internal/config"
	"codebase-rag/internal/index"
	"codebase-rag/internal/models"
)

// Embedder is the query-time embedding dependency.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Engine orchestrates query embedding, index search and context
// assembly.
type Engine struct {
	embedder Embedder
	store    index.Store
	searchK  int
	epsilon  float32
}

func NewEngine(embedder Embedder, store index.Store, cfg config.RetrievalConfig) *Engine {
	searchK := cfg.SearchK
	if searchK <= 0 {
		searchK = 5
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		searchK:  searchK,
		epsilon:  cfg.DedupEpsilon,
	}
}

// Retrieve returns the top-k chunks for the query. Consecutive chunks
// of the same source whose distances fall within epsilon are collapsed
// to avoid near-identical overlapping context. An empty or missing
// collection yields an empty bundle, not an error.
func (e *Engine) Retrieve(ctx context.Context, collectionID, query string, k int) (models.ContextBundle, error) {
	if k <= 0 {
		k = e.searchK
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return models.ContextBundle{}, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := e.store.Query(ctx, collectionID, vector, k)
	if err != nil {
		return models.ContextBundle{}, err
	}
	if len(results) == 0 {
		return models.ContextBundle{}, nil
	}

	results = e.dedup(results)
	log.Debug().Int("results", len(results)).Str("collection_id", collectionID).
		Msg("retrieved context chunks")

	return models.ContextBundle{
		Results: results,
		Context: renderContext(results),
	}, nil
}

// dedup drops a result that is the overlap-sharing neighbor of the
// previously kept chunk from the same file, but only when their
// distances are within epsilon of each other.
func (e *Engine) dedup(results []models.SearchResult) []models.SearchResult {
	kept := results[:1]
	for _, r := range results[1:] {
		prev := kept[len(kept)-1]
		if r.SourcePath == prev.SourcePath &&
			adjacent(r.ChunkIndex, prev.ChunkIndex) &&
			absDiff(r.Distance, prev.Distance) < e.epsilon {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func adjacent(a, b int) bool {
	return a-b == 1 || b-a == 1
}

func absDiff(a, b float32) float32 {
	if a > b {
		return a - b
	}
	return b - a
}

// renderContext formats chunks so the generator can attribute
// citations: each chunk is tagged with its source path and position.
func renderContext(results []models.SearchResult) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "File: %s (Part %d)\n```\n%s\n```\n\n", r.SourcePath, r.ChunkIndex+1, r.Text)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
