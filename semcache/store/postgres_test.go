package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mvula88/easbase-semcache/db"
	"github.com/Mvula88/easbase-semcache/semcache"
)

// newTestPostgres connects to the database named by TEST_POSTGRES_URL, which
// must have the pgvector extension available. The suite is skipped when the
// variable is unset.
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()

	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	gormDB, err := db.NewGorm(url, db.DefaultGormConfig())
	require.NoError(t, err)

	p, err := NewPostgres(gormDB)
	require.NoError(t, err)

	require.NoError(t, gormDB.Exec("TRUNCATE semantic_cache").Error)
	return p
}

func TestPostgres_Contract(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()

	embedder := semcache.HashEmbedder{}
	embed := func(prompt string) []float32 {
		vec, err := embedder.Embed(ctx, prompt)
		require.NoError(t, err)
		return vec
	}

	t.Run("upsert and get", func(t *testing.T) {
		entry := seedEntry(semcache.Key("blog"), "blog", embed("blog"))
		require.NoError(t, p.Upsert(ctx, entry))

		got, err := p.GetByKey(ctx, entry.CacheKey)
		require.NoError(t, err)
		require.Equal(t, entry.Prompt, got.Prompt)
		require.EqualValues(t, 1, got.UsageCount)

		_, err = p.GetByKey(ctx, "missing")
		require.ErrorIs(t, err, semcache.ErrNotFound)
	})

	t.Run("upsert preserves usage", func(t *testing.T) {
		key := semcache.Key("users")
		require.NoError(t, p.Upsert(ctx, seedEntry(key, "users", embed("users"))))
		require.NoError(t, p.RecordHit(ctx, key, time.Now().UTC()))

		replacement := seedEntry(key, "users", embed("users"))
		replacement.SQL = "SELECT 2;"
		require.NoError(t, p.Upsert(ctx, replacement))

		got, err := p.GetByKey(ctx, key)
		require.NoError(t, err)
		require.EqualValues(t, 2, got.UsageCount)
		require.Equal(t, "SELECT 2;", got.SQL)
	})

	t.Run("similarity search", func(t *testing.T) {
		candidates, err := p.SimilaritySearch(ctx, embed("blog"), 0.95, 5)
		require.NoError(t, err)
		require.NotEmpty(t, candidates)
		require.Equal(t, semcache.Key("blog"), candidates[0].CacheKey)
		require.InDelta(t, 1.0, candidates[0].Similarity, 1e-6)

		candidates, err = p.SimilaritySearch(ctx, embed("completely unrelated text"), 0.95, 5)
		require.NoError(t, err)
		require.Empty(t, candidates)
	})

	t.Run("prune", func(t *testing.T) {
		now := time.Now().UTC()
		for i, age := range []int{1, 31, 40} {
			entry := seedEntry(semcache.Key(fmt.Sprintf("aged-%d", i)), "aged", embed(fmt.Sprintf("aged-%d", i)))
			entry.LastUsedAt = now.AddDate(0, 0, -age)
			require.NoError(t, p.Upsert(ctx, entry))
		}

		removed, err := p.DeleteOlderThan(ctx, now.AddDate(0, 0, -30))
		require.NoError(t, err)
		require.EqualValues(t, 2, removed)
	})

	t.Run("aggregate and ranking", func(t *testing.T) {
		totals, err := p.Aggregate(ctx)
		require.NoError(t, err)
		require.Positive(t, totals.Cached)

		top, err := p.TopByUsage(ctx, 1)
		require.NoError(t, err)
		require.Len(t, top, 1)
		require.Equal(t, semcache.Key("users"), top[0].CacheKey)
	})

	t.Run("delete", func(t *testing.T) {
		key := semcache.Key("blog")
		require.NoError(t, p.DeleteByKey(ctx, key))
		_, err := p.GetByKey(ctx, key)
		require.ErrorIs(t, err, semcache.ErrNotFound)

		require.NoError(t, p.DeleteByKey(ctx, "absent-key"))
	})
}
