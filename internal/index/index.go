package index

import (
	"context"

	"codebase-rag/internal/models"
)

// CollectionInfo describes one collection in the index.
type CollectionInfo struct {
	Name    string
	Records int
}

// Store persists (vector, text, metadata) rows per collection and
// answers nearest-neighbor queries. Implementations: chromemdb
// (persistent, default) and pgvector.
//
// Upsert assumes a single writer per collection; readers during a
// write may observe a partially updated collection. Search results
// may be approximate; callers must not depend on exact ranking.
type Store interface {
	// Upsert inserts records. The first insert establishes the
	// collection's embedding dimension; a later batch with a different
	// dimension fails wrapping models.ErrDimensionMismatch and leaves
	// other collections untouched.
	Upsert(ctx context.Context, collectionID string, chunks []models.Chunk, vectors [][]float32) error

	// Query returns up to k records sorted by ascending distance,
	// ties broken by insertion order. A missing or empty collection
	// yields an empty result, not an error.
	Query(ctx context.Context, collectionID string, vector []float32, k int) ([]models.SearchResult, error)

	// Delete removes all records for the collection. Idempotent.
	Delete(ctx context.Context, collectionID string) error

	// DeleteMatching removes every collection whose name starts with
	// prefix and returns the number deleted.
	DeleteMatching(ctx context.Context, prefix string) (int, error)

	// Collections lists collections with their record counts.
	Collections(ctx context.Context) ([]CollectionInfo, error)

	// Count returns the record count of one collection, 0 if missing.
	Count(ctx context.Context, collectionID string) (int, error)
}
