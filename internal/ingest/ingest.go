// Package ingest orchestrates one ingestion run: quota gate, file
// filtering, chunking, batched embedding and index upsert.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"codebase-rag/internal/chunker"
	"codebase-rag/internal/collections"
	"codebase-rag/internal/filter"
	"codebase-rag/internal/index"
	"codebase-rag/internal/models"
)

// Embedder is the batch embedding dependency.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// QuotaGate rejects a run when storage is at the critical threshold.
type QuotaGate interface {
	Check(ctx context.Context) error
}

// Pipeline ingests a repository into one collection. A single writer
// per collection is assumed; a file is the atomic unit of
// cancellation, and chunks already upserted survive an abort.
type Pipeline struct {
	filter    *filter.Filter
	chunker   *chunker.Chunker
	embedder  Embedder
	store     index.Store
	quota     QuotaGate
	batchSize int
}

func New(f *filter.Filter, c *chunker.Chunker, e Embedder, s index.Store, q QuotaGate, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Pipeline{filter: f, chunker: c, embedder: e, store: s, quota: q, batchSize: batchSize}
}

// Run filters, chunks, embeds and indexes the repository at root into
// the session's collection. File-level failures never abort the run; a
// batch that fails embedding after retries marks its source files as
// failed and the run continues. The report makes partial success
// observable.
func (p *Pipeline) Run(ctx context.Context, root, sessionID, repoName string) (models.IngestReport, error) {
	report := models.IngestReport{
		CollectionID: collections.IDFor(sessionID, repoName),
	}

	// checked at the start of every run, not only at startup
	if err := p.quota.Check(ctx); err != nil {
		return report, err
	}

	docs, stats, err := p.filter.Scan(ctx, root)
	if err != nil {
		return report, fmt.Errorf("failed to scan repository: %w", err)
	}
	report.Scanned = stats.Candidates
	report.Filtered = stats.Loaded

	var (
		batch  []models.Chunk
		failed = make(map[string]bool)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := p.flushBatch(ctx, report.CollectionID, batch, failed, &report)
		batch = batch[:0]
		return err
	}

	for _, doc := range docs {
		if cerr := ctx.Err(); cerr != nil {
			// abort between files; what was upserted stays
			return report, cerr
		}
		chunks := p.chunker.Chunk(doc)
		for i := range chunks {
			chunks[i].CollectionID = report.CollectionID
		}
		report.Chunked += len(chunks)
		batch = append(batch, chunks...)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				return report, err
			}
		}
	}
	if err := flush(); err != nil {
		return report, err
	}

	report.Failed = len(failed)
	for path := range failed {
		report.FailedPaths = append(report.FailedPaths, path)
	}
	sort.Strings(report.FailedPaths)

	log.Info().Str("collection_id", report.CollectionID).
		Int("scanned", report.Scanned).Int("filtered", report.Filtered).
		Int("chunked", report.Chunked).Int("embedded", report.Embedded).
		Int("failed", report.Failed).Msg("ingestion run complete")
	return report, nil
}

// flushBatch embeds and upserts one batch. An embedding failure marks
// the batch's source files failed and lets the run continue; an index
// write failure (dimension mismatch) is fatal for the collection and
// aborts the run.
func (p *Pipeline) flushBatch(ctx context.Context, collectionID string, batch []models.Chunk, failed map[string]bool, report *models.IngestReport) error {
	texts := make([]string, len(batch))
	for i, ch := range batch {
		texts[i] = ch.Text
	}

	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		for _, ch := range batch {
			failed[ch.SourcePath] = true
		}
		log.Warn().Err(err).Int("chunks", len(batch)).
			Msg("embedding batch failed, skipping its source files")
		return nil
	}

	chunks := make([]models.Chunk, len(batch))
	copy(chunks, batch)
	if err := p.store.Upsert(ctx, collectionID, chunks, vectors); err != nil {
		return fmt.Errorf("failed to index batch: %w", err)
	}
	report.Embedded += len(chunks)
	return nil
}
