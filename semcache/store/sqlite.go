package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Mvula88/easbase-semcache/semcache"
)

// SQLite is a semcache.Store backed by a local SQLite file. Exact-key
// operations are single statements; similarity search scans stored
// embeddings and ranks them in Go, which is fine at the row counts a
// per-node cache sees.
type SQLite struct {
	db *sql.DB
}

// SQLiteConfig holds SQLite store configuration.
type SQLiteConfig struct {
	// Path is the database file path (default ~/.cache/easbase-semcache.db).
	Path string
}

// NewSQLite opens (creating if needed) the cache database.
func NewSQLite(config SQLiteConfig) (*SQLite, error) {
	if config.Path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		config.Path = filepath.Join(homeDir, ".cache", "easbase-semcache.db")
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (s *SQLite) Upsert(ctx context.Context, entry *semcache.Entry) error {
	query := `
		INSERT INTO semantic_cache (
			cache_key, prompt, embedding, schema_json, sql_text, model_used,
			tokens_saved, usage_count, created_at, last_used_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			prompt = excluded.prompt,
			embedding = excluded.embedding,
			schema_json = excluded.schema_json,
			sql_text = excluded.sql_text,
			model_used = excluded.model_used,
			tokens_saved = excluded.tokens_saved,
			last_used_at = excluded.last_used_at
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.CacheKey, entry.Prompt, encodeVector(entry.Embedding),
		string(entry.Schema), entry.SQL, entry.ModelUsed,
		entry.TokensSaved, entry.UsageCount, entry.CreatedAt.UTC(), entry.LastUsedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (s *SQLite) GetByKey(ctx context.Context, cacheKey string) (*semcache.Entry, error) {
	query := `
		SELECT cache_key, prompt, embedding, schema_json, sql_text, model_used,
		       tokens_saved, usage_count, created_at, last_used_at
		FROM semantic_cache
		WHERE cache_key = ?
	`
	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, cacheKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, semcache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return entry, nil
}

func (s *SQLite) SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]semcache.Candidate, error) {
	query := `
		SELECT cache_key, prompt, embedding, schema_json, sql_text, model_used,
		       tokens_saved, usage_count, created_at, last_used_at
		FROM semantic_cache
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache entries: %w", err)
	}
	defer rows.Close()

	var candidates []semcache.Candidate
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		similarity := semcache.CosineSimilarity(embedding, entry.Embedding)
		if similarity >= threshold {
			candidates = append(candidates, semcache.Candidate{Entry: *entry, Similarity: similarity})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache entries: %w", err)
	}

	rankCandidates(candidates)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *SQLite) RecordHit(ctx context.Context, cacheKey string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE semantic_cache SET usage_count = usage_count + 1, last_used_at = ? WHERE cache_key = ?",
		at.UTC(), cacheKey,
	)
	if err != nil {
		return fmt.Errorf("failed to record cache hit: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteByKey(ctx context.Context, cacheKey string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM semantic_cache WHERE cache_key = ?", cacheKey); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM semantic_cache WHERE last_used_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale cache entries: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted entries: %w", err)
	}
	return removed, nil
}

func (s *SQLite) Aggregate(ctx context.Context) (semcache.Totals, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(usage_count - 1), 0),
		       COALESCE(SUM(tokens_saved * (usage_count - 1)), 0)
		FROM semantic_cache
	`
	var totals semcache.Totals
	err := s.db.QueryRowContext(ctx, query).Scan(&totals.Cached, &totals.Hits, &totals.TokensSaved)
	if err != nil {
		return semcache.Totals{}, fmt.Errorf("failed to aggregate cache stats: %w", err)
	}
	return totals, nil
}

func (s *SQLite) TopByUsage(ctx context.Context, limit int) ([]semcache.Entry, error) {
	query := `
		SELECT cache_key, prompt, embedding, schema_json, sql_text, model_used,
		       tokens_saved, usage_count, created_at, last_used_at
		FROM semantic_cache
		ORDER BY usage_count DESC, last_used_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank cache entries: %w", err)
	}
	defer rows.Close()

	var entries []semcache.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to rank cache entries: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*semcache.Entry, error) {
	var entry semcache.Entry
	var blob []byte
	var schema string
	if err := row.Scan(
		&entry.CacheKey, &entry.Prompt, &blob, &schema, &entry.SQL, &entry.ModelUsed,
		&entry.TokensSaved, &entry.UsageCount, &entry.CreatedAt, &entry.LastUsedAt,
	); err != nil {
		return nil, err
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, err
	}
	entry.Embedding = vec
	entry.Schema = []byte(schema)
	return &entry, nil
}
