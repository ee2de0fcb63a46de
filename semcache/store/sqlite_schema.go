package store

// sqliteSchema is the embedded SQLite schema for the semantic cache.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS semantic_cache (
    cache_key TEXT PRIMARY KEY,
    prompt TEXT NOT NULL,
    embedding BLOB NOT NULL,
    schema_json TEXT NOT NULL,
    sql_text TEXT NOT NULL,
    model_used TEXT NOT NULL DEFAULT '',

    tokens_saved INTEGER NOT NULL DEFAULT 0,
    usage_count INTEGER NOT NULL DEFAULT 1,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_used_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_semantic_cache_last_used ON semantic_cache(last_used_at);
CREATE INDEX IF NOT EXISTS idx_semantic_cache_usage ON semantic_cache(usage_count DESC);
`
