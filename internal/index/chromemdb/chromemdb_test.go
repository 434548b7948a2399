package chromemdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codebase-rag/internal/models"
)

func chunk(path string, idx int, text string) models.Chunk {
	return models.Chunk{Text: text, SourcePath: path, Index: idx}
}

// all vectors are pre-normalized so cosine similarity is a plain dot product
func seedStore(t *testing.T) *Store {
	t.Helper()
	s := NewInMemory()
	err := s.Upsert(context.Background(), "session_a_repo",
		[]models.Chunk{
			chunk("src/auth.go", 0, "func Login() {}"),
			chunk("src/auth.go", 1, "func Logout() {}"),
			chunk("src/db.go", 0, "func Connect() {}"),
		},
		[][]float32{
			{1, 0, 0},
			{0.8, 0.6, 0},
			{0, 1, 0},
		})
	require.NoError(t, err)
	return s
}

func TestQuerySortedAscendingByDistance(t *testing.T) {
	s := seedStore(t)

	results, err := s.Query(context.Background(), "session_a_repo", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "func Login() {}", results[0].Text)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-5)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i].Distance, results[i-1].Distance)
	}
	assert.Equal(t, "src/auth.go", results[0].SourcePath)
	assert.Equal(t, 0, results[0].ChunkIndex)
}

func TestQueryClampsKToRecordCount(t *testing.T) {
	s := seedStore(t)

	results, err := s.Query(context.Background(), "session_a_repo", []float32{0, 0, 1}, 50)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestQueryMissingCollectionIsEmpty(t *testing.T) {
	s := NewInMemory()

	results, err := s.Query(context.Background(), "session_nope_repo", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "session_a_repo"))
	require.NoError(t, s.Delete(ctx, "session_a_repo"))

	results, err := s.Query(ctx, "session_a_repo", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteMatchingIsolation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	vecs := [][]float32{{1, 0, 0}}

	for _, name := range []string{"session_s1_alpha", "session_s1_beta", "session_s1_gamma", "session_s2_delta"} {
		require.NoError(t, s.Upsert(ctx, name, []models.Chunk{chunk("main.go", 0, "package main")}, vecs))
	}

	deleted, err := s.DeleteMatching(ctx, "session_s1_")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	infos, err := s.Collections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "session_s2_delta", infos[0].Name)
	assert.Equal(t, 1, infos[0].Records)
}

func TestUpsertDimensionMismatch(t *testing.T) {
	s := seedStore(t)

	err := s.Upsert(context.Background(), "session_a_repo",
		[]models.Chunk{chunk("src/new.go", 0, "func New() {}")},
		[][]float32{{1, 0, 0, 0}})
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)

	// other collections are unaffected by the bad batch
	err = s.Upsert(context.Background(), "session_b_repo",
		[]models.Chunk{chunk("src/new.go", 0, "func New() {}")},
		[][]float32{{1, 0, 0, 0}})
	assert.NoError(t, err)
}

func TestCount(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx, "session_a_repo")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.Count(ctx, "session_missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPersistentStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir, false)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, "session_p_repo",
		[]models.Chunk{chunk("lib.rs", 0, "fn lib() {}")},
		[][]float32{{0, 1, 0}}))

	// a fresh handle over the same root sees the persisted records
	reopened, err := New(dir, false)
	require.NoError(t, err)
	results, err := reopened.Query(ctx, "session_p_repo", []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fn lib() {}", results[0].Text)
}

func TestDimensionSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir, false)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, "session_p_repo",
		[]models.Chunk{chunk("lib.rs", 0, "fn lib() {}")},
		[][]float32{{0, 1, 0}}))

	// a wrong-dimension batch must be rejected by a fresh handle too
	reopened, err := New(dir, false)
	require.NoError(t, err)
	err = reopened.Upsert(ctx, "session_p_repo",
		[]models.Chunk{chunk("lib.rs", 1, "fn other() {}")},
		[][]float32{{0, 1, 0, 0, 0}})
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)

	// and the existing records stay reachable at the established dimension
	results, err := reopened.Query(ctx, "session_p_repo", []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fn lib() {}", results[0].Text)
}

func TestDimensionNotEstablishedByEmptyUpsert(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "session_e_repo", nil, nil))
	require.NoError(t, s.Upsert(ctx, "session_e_repo",
		[]models.Chunk{chunk("a.go", 0, "package a")},
		[][]float32{{1, 0, 0}}))
}
