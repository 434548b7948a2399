// Package chromemdb implements the vector index on an embedded
// chromem-go database persisted under a single root directory.
package chromemdb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"codebase-rag/internal/index"
	"codebase-rag/internal/models"
)

var _ index.Store = (*Store)(nil)

// Store wraps a chromem-go database. One chromem collection per
// logical collection id; records carry source path, chunk index and
// an insertion sequence in their metadata.
type Store struct {
	db   *chromem.DB
	path string

	mu   sync.Mutex
	dims map[string]int // established embedding dimension per collection
}

// New opens (or creates) a persistent store rooted at path. Established
// collection dimensions are kept in a manifest next to the chromem data
// so the dimension invariant survives process restarts.
func New(path string, compress bool) (*Store, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %v", err)
	}
	dims, err := loadDimensions(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path, dims: dims}, nil
}

// NewInMemory creates a store without persistence. Used in tests.
func NewInMemory() *Store {
	return &Store{db: chromem.NewDB(), dims: make(map[string]int)}
}

// Path returns the persistence root, empty for in-memory stores.
func (s *Store) Path() string { return s.path }

func dimensionsPath(root string) string {
	return filepath.Join(root, "dimensions.json")
}

func loadDimensions(root string) (map[string]int, error) {
	dims := make(map[string]int)
	data, err := os.ReadFile(dimensionsPath(root))
	if os.IsNotExist(err) {
		return dims, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dimension manifest: %v", err)
	}
	if err := json.Unmarshal(data, &dims); err != nil {
		return nil, fmt.Errorf("failed to parse dimension manifest: %v", err)
	}
	return dims, nil
}

// persistDims writes the dimension manifest. Caller holds s.mu.
func (s *Store) persistDims() {
	if s.path == "" {
		return
	}
	data, err := json.MarshalIndent(s.dims, "", "  ")
	if err == nil {
		err = os.WriteFile(dimensionsPath(s.path), data, 0o644)
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to persist collection dimensions")
	}
}

func (s *Store) Upsert(ctx context.Context, collectionID string, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}

	dim := len(vectors[0])
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("collection %s: batch mixes dimensions %d and %d: %w",
				collectionID, dim, len(v), models.ErrDimensionMismatch)
		}
	}

	s.mu.Lock()
	est, known := s.dims[collectionID]
	s.mu.Unlock()
	if known && est != dim {
		return fmt.Errorf("collection %s: established dimension %d, got %d: %w",
			collectionID, est, dim, models.ErrDimensionMismatch)
	}

	col, err := s.db.GetOrCreateCollection(collectionID, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %v", err)
	}

	base := col.Count()
	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:        fmt.Sprintf("%s:%d", ch.SourcePath, ch.Index),
			Content:   ch.Text,
			Embedding: vectors[i],
			Metadata: map[string]string{
				"source_path":   ch.SourcePath,
				"chunk_index":   strconv.Itoa(ch.Index),
				"collection_id": collectionID,
				"start_offset":  strconv.Itoa(ch.StartOffset),
				"end_offset":    strconv.Itoa(ch.EndOffset),
				"seq":           strconv.Itoa(base + i),
			},
		}
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents to %s: %v", collectionID, err)
	}

	// established only once the records are actually in
	if !known {
		s.mu.Lock()
		s.dims[collectionID] = dim
		s.persistDims()
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collectionID string, vector []float32, k int) ([]models.SearchResult, error) {
	s.mu.Lock()
	if est, ok := s.dims[collectionID]; ok && est != len(vector) {
		s.mu.Unlock()
		return nil, fmt.Errorf("collection %s: established dimension %d, query has %d: %w",
			collectionID, est, len(vector), models.ErrDimensionMismatch)
	}
	s.mu.Unlock()

	col := s.db.GetCollection(collectionID, nil)
	if col == nil {
		return nil, nil
	}
	count := col.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	raw, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		// chromem reports a length mismatch when the manifest is gone
		// but the stored embeddings have a different dimension
		if strings.Contains(err.Error(), "same length") {
			return nil, fmt.Errorf("collection %s: query dimension %d does not match stored embeddings: %w",
				collectionID, len(vector), models.ErrDimensionMismatch)
		}
		return nil, fmt.Errorf("failed to query collection %s: %v", collectionID, err)
	}

	type ranked struct {
		res models.SearchResult
		seq int
	}
	results := make([]ranked, 0, len(raw))
	for _, r := range raw {
		chunkIdx, _ := strconv.Atoi(r.Metadata["chunk_index"])
		seq, _ := strconv.Atoi(r.Metadata["seq"])
		results = append(results, ranked{
			res: models.SearchResult{
				Text:       r.Content,
				SourcePath: r.Metadata["source_path"],
				ChunkIndex: chunkIdx,
				Distance:   1 - r.Similarity,
			},
			seq: seq,
		})
	}
	// ascending distance, earlier insertion wins ties
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].res.Distance != results[j].res.Distance {
			return results[i].res.Distance < results[j].res.Distance
		}
		return results[i].seq < results[j].seq
	})

	out := make([]models.SearchResult, len(results))
	for i, r := range results {
		out[i] = r.res
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, collectionID string) error {
	if err := s.db.DeleteCollection(collectionID); err != nil {
		return fmt.Errorf("failed to delete collection %s: %v", collectionID, err)
	}
	s.mu.Lock()
	delete(s.dims, collectionID)
	s.persistDims()
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteMatching(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	for name := range s.db.ListCollections() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := s.db.DeleteCollection(name); err != nil {
			return deleted, fmt.Errorf("failed to delete collection %s: %v", name, err)
		}
		s.mu.Lock()
		delete(s.dims, name)
		s.persistDims()
		s.mu.Unlock()
		deleted++
	}
	log.Debug().Int("deleted", deleted).Str("prefix", prefix).Msg("deleted matching collections")
	return deleted, nil
}

func (s *Store) Collections(ctx context.Context) ([]index.CollectionInfo, error) {
	cols := s.db.ListCollections()
	infos := make([]index.CollectionInfo, 0, len(cols))
	for name, col := range cols {
		infos = append(infos, index.CollectionInfo{Name: name, Records: col.Count()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (s *Store) Count(ctx context.Context, collectionID string) (int, error) {
	col := s.db.GetCollection(collectionID, nil)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}
