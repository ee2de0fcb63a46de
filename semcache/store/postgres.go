package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Mvula88/easbase-semcache/semcache"
)

// Postgres is a semcache.Store backed by Postgres with the pgvector
// extension. Similarity search runs in the database via the cosine
// distance operator; usage-count increments and upserts are single
// statements, so concurrent engines need no coordination.
//
// gorm does not map the vector type, so the embedding column is read and
// written through raw SQL with ?::vector casts.
type Postgres struct {
	db *gorm.DB
}

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS semantic_cache (
    cache_key TEXT PRIMARY KEY,
    prompt TEXT NOT NULL,
    embedding vector(1536) NOT NULL,
    schema_json JSONB NOT NULL,
    sql_text TEXT NOT NULL,
    model_used TEXT NOT NULL DEFAULT '',

    tokens_saved BIGINT NOT NULL DEFAULT 0,
    usage_count BIGINT NOT NULL DEFAULT 1,

    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_used_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_semantic_cache_last_used ON semantic_cache (last_used_at);
CREATE INDEX IF NOT EXISTS idx_semantic_cache_usage ON semantic_cache (usage_count DESC);
`

// NewPostgres wraps an existing gorm connection and ensures the schema
// exists.
func NewPostgres(db *gorm.DB) (*Postgres, error) {
	if err := db.Exec(postgresSchema).Error; err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// cacheRow mirrors the semantic_cache table for gorm scans. The embedding
// column is handled separately as a pgvector literal.
type cacheRow struct {
	CacheKey    string
	Prompt      string
	SchemaJSON  []byte
	SQLText     string
	ModelUsed   string
	TokensSaved int64
	UsageCount  int64
	CreatedAt   time.Time
	LastUsedAt  time.Time
	Similarity  float64
}

func (r cacheRow) entry() semcache.Entry {
	return semcache.Entry{
		CacheKey:    r.CacheKey,
		Prompt:      r.Prompt,
		Schema:      r.SchemaJSON,
		SQL:         r.SQLText,
		ModelUsed:   r.ModelUsed,
		TokensSaved: r.TokensSaved,
		UsageCount:  r.UsageCount,
		CreatedAt:   r.CreatedAt,
		LastUsedAt:  r.LastUsedAt,
	}
}

func (p *Postgres) Upsert(ctx context.Context, entry *semcache.Entry) error {
	query := `
		INSERT INTO semantic_cache (
			cache_key, prompt, embedding, schema_json, sql_text, model_used,
			tokens_saved, usage_count, created_at, last_used_at
		) VALUES (?, ?, ?::vector, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			prompt = EXCLUDED.prompt,
			embedding = EXCLUDED.embedding,
			schema_json = EXCLUDED.schema_json,
			sql_text = EXCLUDED.sql_text,
			model_used = EXCLUDED.model_used,
			tokens_saved = EXCLUDED.tokens_saved,
			last_used_at = EXCLUDED.last_used_at
	`
	err := p.db.WithContext(ctx).Exec(query,
		entry.CacheKey, entry.Prompt, pgvectorLiteral(entry.Embedding),
		string(entry.Schema), entry.SQL, entry.ModelUsed,
		entry.TokensSaved, entry.UsageCount, entry.CreatedAt.UTC(), entry.LastUsedAt.UTC(),
	).Error
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (p *Postgres) GetByKey(ctx context.Context, cacheKey string) (*semcache.Entry, error) {
	var rows []cacheRow
	err := p.db.WithContext(ctx).Raw(`
		SELECT cache_key, prompt, schema_json, sql_text, model_used,
		       tokens_saved, usage_count, created_at, last_used_at
		FROM semantic_cache
		WHERE cache_key = ?
	`, cacheKey).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	if len(rows) == 0 {
		return nil, semcache.ErrNotFound
	}
	entry := rows[0].entry()
	return &entry, nil
}

func (p *Postgres) SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]semcache.Candidate, error) {
	literal := pgvectorLiteral(embedding)
	var rows []cacheRow
	err := p.db.WithContext(ctx).Raw(`
		SELECT cache_key, prompt, schema_json, sql_text, model_used,
		       tokens_saved, usage_count, created_at, last_used_at,
		       1 - (embedding <=> ?::vector) AS similarity
		FROM semantic_cache
		WHERE 1 - (embedding <=> ?::vector) >= ?
		ORDER BY embedding <=> ?::vector
		LIMIT ?
	`, literal, literal, threshold, literal, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	candidates := make([]semcache.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, semcache.Candidate{
			Entry:      row.entry(),
			Similarity: row.Similarity,
		})
	}
	return candidates, nil
}

func (p *Postgres) RecordHit(ctx context.Context, cacheKey string, at time.Time) error {
	err := p.db.WithContext(ctx).Exec(
		"UPDATE semantic_cache SET usage_count = usage_count + 1, last_used_at = ? WHERE cache_key = ?",
		at.UTC(), cacheKey,
	).Error
	if err != nil {
		return fmt.Errorf("failed to record cache hit: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteByKey(ctx context.Context, cacheKey string) error {
	err := p.db.WithContext(ctx).Exec("DELETE FROM semantic_cache WHERE cache_key = ?", cacheKey).Error
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := p.db.WithContext(ctx).Exec("DELETE FROM semantic_cache WHERE last_used_at < ?", cutoff.UTC())
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete stale cache entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (p *Postgres) Aggregate(ctx context.Context) (semcache.Totals, error) {
	var totals semcache.Totals
	err := p.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) AS cached,
		       COALESCE(SUM(usage_count - 1), 0) AS hits,
		       COALESCE(SUM(tokens_saved * (usage_count - 1)), 0) AS tokens_saved
		FROM semantic_cache
	`).Scan(&totals).Error
	if err != nil {
		return semcache.Totals{}, fmt.Errorf("failed to aggregate cache stats: %w", err)
	}
	return totals, nil
}

func (p *Postgres) TopByUsage(ctx context.Context, limit int) ([]semcache.Entry, error) {
	var rows []cacheRow
	err := p.db.WithContext(ctx).Raw(`
		SELECT cache_key, prompt, schema_json, sql_text, model_used,
		       tokens_saved, usage_count, created_at, last_used_at
		FROM semantic_cache
		ORDER BY usage_count DESC, last_used_at DESC
		LIMIT ?
	`, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to rank cache entries: %w", err)
	}

	entries := make([]semcache.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, nil
}
