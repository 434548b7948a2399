// Package pgvector implements the vector index on Postgres with the
// pgvector extension, selected via store.type in the configuration.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"codebase-rag/internal/config"
	"codebase-rag/internal/index"
	"codebase-rag/internal/models"
)

var _ index.Store = (*Store)(nil)

// Record is one persisted embedding row. Chunk text, vector and
// metadata share the row and therefore a lifetime.
type Record struct {
	bun.BaseModel `bun:"table:embeddings,alias:e"`
	ID            int64     `bun:"id,pk,autoincrement"`
	CollectionID  string    `bun:"collection_id,notnull"`
	SourcePath    string    `bun:"source_path,notnull"`
	ChunkIndex    int       `bun:"chunk_index,notnull"`
	StartOffset   int       `bun:"start_offset,notnull"`
	EndOffset     int       `bun:"end_offset,notnull"`
	Content       string    `bun:"content,notnull"`
	Embedding     []float32 `bun:"embedding,notnull,type:vector(768)"`
	Distance      float64   `bun:"distance,scanonly"`
}

// Store implements the vector index over a single embeddings table
// keyed by collection id.
type Store struct {
	db        *bun.DB
	dimension int
}

// Connect opens the Postgres connection described by cfg.
func Connect(cfg config.PGConfig) (*bun.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		return nil, fmt.Errorf("pgvector: dsn is required")
	}
	password := ""
	if cfg.PasswordEnv != "" {
		password = os.Getenv(cfg.PasswordEnv)
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithPassword(password)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db, nil
}

// New wraps an open bun connection. The embedding dimension is fixed
// by configuration because the column type declares it.
func New(db *bun.DB, dimension int) *Store {
	if dimension <= 0 {
		dimension = 768
	}
	return &Store{db: db, dimension: dimension}
}

// Init creates the embeddings table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*Record)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Upsert(ctx context.Context, collectionID string, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("collection %s: column dimension %d, got %d: %w",
				collectionID, s.dimension, len(v), models.ErrDimensionMismatch)
		}
	}

	records := make([]Record, len(chunks))
	for i, ch := range chunks {
		records[i] = Record{
			CollectionID: collectionID,
			SourcePath:   ch.SourcePath,
			ChunkIndex:   ch.Index,
			StartOffset:  ch.StartOffset,
			EndOffset:    ch.EndOffset,
			Content:      ch.Text,
			Embedding:    vectors[i],
		}
	}
	_, err := s.db.NewInsert().Model(&records).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store records in %s: %v", collectionID, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collectionID string, vector []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	var records []Record
	err := s.db.NewSelect().
		Model(&records).
		Column("source_path", "chunk_index", "content").
		ColumnExpr("embedding <-> ? AS distance", vector).
		Where("collection_id = ?", collectionID).
		OrderExpr("embedding <-> ?", vector).
		OrderExpr("id ASC").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %v", collectionID, err)
	}

	results := make([]models.SearchResult, len(records))
	for i, r := range records {
		results[i] = models.SearchResult{
			Text:       r.Content,
			SourcePath: r.SourcePath,
			ChunkIndex: r.ChunkIndex,
			Distance:   float32(r.Distance),
		}
	}
	return results, nil
}

func (s *Store) Delete(ctx context.Context, collectionID string) error {
	_, err := s.db.NewDelete().
		Model((*Record)(nil)).
		Where("collection_id = ?", collectionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete collection %s: %v", collectionID, err)
	}
	return nil
}

func (s *Store) DeleteMatching(ctx context.Context, prefix string) (int, error) {
	var names []string
	err := s.db.NewSelect().
		Model((*Record)(nil)).
		ColumnExpr("DISTINCT collection_id").
		Where("collection_id LIKE ?", likePrefix(prefix)).
		Scan(ctx, &names)
	if err != nil {
		return 0, fmt.Errorf("failed to list collections for prefix %s: %v", prefix, err)
	}
	if len(names) == 0 {
		return 0, nil
	}
	_, err = s.db.NewDelete().
		Model((*Record)(nil)).
		Where("collection_id LIKE ?", likePrefix(prefix)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete collections for prefix %s: %v", prefix, err)
	}
	return len(names), nil
}

func (s *Store) Collections(ctx context.Context) ([]index.CollectionInfo, error) {
	var rows []struct {
		CollectionID string `bun:"collection_id"`
		Records      int    `bun:"records"`
	}
	err := s.db.NewSelect().
		Model((*Record)(nil)).
		ColumnExpr("collection_id").
		ColumnExpr("count(*) AS records").
		GroupExpr("collection_id").
		OrderExpr("collection_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %v", err)
	}
	infos := make([]index.CollectionInfo, len(rows))
	for i, r := range rows {
		infos[i] = index.CollectionInfo{Name: r.CollectionID, Records: r.Records}
	}
	return infos, nil
}

func (s *Store) Count(ctx context.Context, collectionID string) (int, error) {
	n, err := s.db.NewSelect().
		Model((*Record)(nil)).
		Where("collection_id = ?", collectionID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count collection %s: %v", collectionID, err)
	}
	return n, nil
}

// likePrefix escapes LIKE metacharacters so the prefix matches
// literally.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
