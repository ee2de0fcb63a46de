package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mvula88/easbase-semcache/semcache"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "semcache-test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_UpsertAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	entry := seedEntry("k1", "create a blog schema", []float32{0.5, 0.25, 1})
	require.NoError(t, s.Upsert(ctx, entry))

	got, err := s.GetByKey(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, entry.Prompt, got.Prompt)
	require.Equal(t, entry.SQL, got.SQL)
	require.Equal(t, entry.Embedding, got.Embedding)
	require.Equal(t, entry.TokensSaved, got.TokensSaved)
	require.EqualValues(t, 1, got.UsageCount)

	_, err = s.GetByKey(ctx, "missing")
	require.ErrorIs(t, err, semcache.ErrNotFound)
}

func TestSQLite_UpsertPreservesUsage(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, seedEntry("k1", "p1", []float32{1, 0})))
	require.NoError(t, s.RecordHit(ctx, "k1", time.Now().UTC()))
	require.NoError(t, s.RecordHit(ctx, "k1", time.Now().UTC()))

	replacement := seedEntry("k1", "p1", []float32{0, 1})
	replacement.SQL = "SELECT 2;"
	require.NoError(t, s.Upsert(ctx, replacement))

	got, err := s.GetByKey(ctx, "k1")
	require.NoError(t, err)
	require.EqualValues(t, 3, got.UsageCount, "upsert must not reset usage_count")
	require.Equal(t, "SELECT 2;", got.SQL)
	require.Equal(t, []float32{0, 1}, got.Embedding)
}

func TestSQLite_SimilaritySearch(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, seedEntry("exact", "p1", []float32{1, 0, 0})))
	require.NoError(t, s.Upsert(ctx, seedEntry("near", "p2", []float32{1, 0.1, 0})))
	require.NoError(t, s.Upsert(ctx, seedEntry("far", "p3", []float32{0, 1, 0})))

	candidates, err := s.SimilaritySearch(ctx, []float32{1, 0, 0}, 0.9, 5)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, "exact", candidates[0].CacheKey)
	require.Equal(t, 1.0, candidates[0].Similarity)
	require.Equal(t, "near", candidates[1].CacheKey)

	// Empty store is a miss, not an error.
	empty := newTestSQLite(t)
	candidates, err = empty.SimilaritySearch(ctx, []float32{1, 0, 0}, 0.9, 5)
	require.NoError(t, err)
	require.Empty(t, candidates)
}

func TestSQLite_RecordHit(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, seedEntry("k1", "p1", []float32{1})))

	at := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, s.RecordHit(ctx, "k1", at))

	got, err := s.GetByKey(ctx, "k1")
	require.NoError(t, err)
	require.EqualValues(t, 2, got.UsageCount)
	require.True(t, got.LastUsedAt.Equal(at), "lastUsedAt = %v, want %v", got.LastUsedAt, at)
}

func TestSQLite_DeleteOlderThan(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ages := map[string]time.Time{
		"fresh":      now.AddDate(0, 0, -1),
		"stale":      now.AddDate(0, 0, -40),
		"borderline": now.AddDate(0, 0, -31),
	}
	for key, lastUsed := range ages {
		entry := seedEntry(key, key, []float32{1})
		entry.LastUsedAt = lastUsed
		require.NoError(t, s.Upsert(ctx, entry))
	}

	removed, err := s.DeleteOlderThan(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	_, err = s.GetByKey(ctx, "fresh")
	require.NoError(t, err)
	_, err = s.GetByKey(ctx, "stale")
	require.ErrorIs(t, err, semcache.ErrNotFound)
}

func TestSQLite_Aggregate(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	// Empty store aggregates to zeros.
	totals, err := s.Aggregate(ctx)
	require.NoError(t, err)
	require.Equal(t, semcache.Totals{}, totals)

	fixtures := []struct {
		key    string
		tokens int64
		hits   int
	}{
		{key: "a", tokens: 100, hits: 0},
		{key: "b", tokens: 200, hits: 2},
		{key: "c", tokens: 50, hits: 4},
	}
	for _, f := range fixtures {
		entry := seedEntry(f.key, f.key, []float32{1})
		entry.TokensSaved = f.tokens
		require.NoError(t, s.Upsert(ctx, entry))
		for i := 0; i < f.hits; i++ {
			require.NoError(t, s.RecordHit(ctx, f.key, time.Now().UTC()))
		}
	}

	totals, err = s.Aggregate(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, totals.Cached)
	require.EqualValues(t, 6, totals.Hits)
	require.EqualValues(t, 600, totals.TokensSaved)
}

func TestSQLite_TopByUsage(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	usage := map[string]int{"low": 0, "mid": 2, "high": 5}
	for key, hits := range usage {
		require.NoError(t, s.Upsert(ctx, seedEntry(key, key, []float32{1})))
		for i := 0; i < hits; i++ {
			require.NoError(t, s.RecordHit(ctx, key, time.Now().UTC()))
		}
	}

	top, err := s.TopByUsage(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "high", top[0].CacheKey)
	require.Equal(t, "mid", top[1].CacheKey)
}

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0, 0.25, 0.5, 0.99, 1}
	decoded, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	require.Equal(t, vec, decoded)

	_, err = decodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}
