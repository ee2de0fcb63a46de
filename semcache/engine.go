package semcache

import (
	"context"
	"fmt"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"
)

const (
	// DefaultThreshold is the minimum cosine similarity for the general
	// lookup path.
	DefaultThreshold = 0.95

	// SearchThreshold is the looser minimum used by the API-facing search
	// path, where callers tolerate weaker matches.
	SearchThreshold = 0.90

	// candidateLimit bounds the candidate set fetched per lookup; only the
	// top-ranked candidate counts as the hit.
	candidateLimit = 5
)

// Store is the persisted-store contract the engine runs against. All
// mutable cache state lives behind it; RecordHit and Upsert must be atomic
// at the storage layer so concurrent engine instances stay correct without
// engine-side locking.
type Store interface {
	// Upsert inserts or replaces the row for entry.CacheKey. On replace the
	// existing usage_count and created_at are preserved; artifact, embedding
	// and last_used_at are overwritten.
	Upsert(ctx context.Context, entry *Entry) error

	// GetByKey returns the row for cacheKey, or ErrNotFound.
	GetByKey(ctx context.Context, cacheKey string) (*Entry, error)

	// SimilaritySearch returns up to limit candidates with cosine similarity
	// >= threshold, ranked by descending similarity.
	SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]Candidate, error)

	// RecordHit atomically increments usage_count and sets last_used_at.
	RecordHit(ctx context.Context, cacheKey string, at time.Time) error

	// DeleteByKey removes the row for cacheKey; absent keys are a no-op.
	DeleteByKey(ctx context.Context, cacheKey string) error

	// DeleteOlderThan removes rows with last_used_at before cutoff and
	// returns the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Aggregate computes the cache-wide totals in a single pass.
	Aggregate(ctx context.Context) (Totals, error)

	// TopByUsage returns the limit most-used entries, usage_count descending.
	TopByUsage(ctx context.Context, limit int) ([]Entry, error)
}

// Totals are the raw aggregates a Store reports. Hits counts reuses beyond
// the initial store, i.e. sum(usage_count - 1).
type Totals struct {
	Cached      int64
	Hits        int64
	TokensSaved int64
}

// Stats is the engine's aggregated view over all cached entries.
type Stats struct {
	TotalCached      int64
	TotalHits        int64
	TotalTokensSaved int64
	EstimatedSavings float64 // USD, derived from TotalTokensSaved
}

// HitRate returns hits / (hits + cached), or 0 for an empty cache.
func (s Stats) HitRate() float64 {
	denom := s.TotalHits + s.TotalCached
	if denom == 0 {
		return 0
	}
	return float64(s.TotalHits) / float64(denom)
}

// Engine is the semantic cache: key derivation, embedding, similarity
// lookup, write-through storage, usage accounting and eviction. It holds no
// mutable state of its own, so a single instance (or one per request) is
// safe for arbitrarily many concurrent callers.
type Engine struct {
	store    Store
	embedder Embedder
	pricing  Pricing
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmbedder swaps the embedding provider. The default is HashEmbedder.
func WithEmbedder(e Embedder) Option {
	return func(eng *Engine) { eng.embedder = e }
}

// WithPricing sets the pricing used for cost-savings estimates.
func WithPricing(p Pricing) Option {
	return func(eng *Engine) { eng.pricing = p }
}

// New creates an Engine over the given store.
func New(store Store, opts ...Option) *Engine {
	eng := &Engine{
		store:    store,
		embedder: HashEmbedder{},
		pricing:  DefaultPricing,
	}
	for _, opt := range opts {
		opt(eng)
	}
	return eng
}

// FindSimilar looks up a cached result for prompt. Candidates at or above
// threshold are ranked by similarity; the top one is the hit and gets its
// usage count incremented and last_used_at touched. A miss (empty store or
// nothing above threshold) returns (nil, nil). Store failures propagate
// unchanged; callers decide whether to degrade to a miss.
func (e *Engine) FindSimilar(ctx context.Context, prompt string, threshold float64) (*Match, error) {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}

	vec, err := e.embedder.Embed(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to embed prompt: %w", err)
	}

	candidates, err := e.store.SimilaritySearch(ctx, vec, threshold, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	if len(candidates) == 0 {
		logger.Tracef("cache miss for %s (threshold=%.2f)", lo.Ellipsis(prompt, 40), threshold)
		return nil, nil
	}

	top := candidates[0]
	now := time.Now().UTC()
	if err := e.store.RecordHit(ctx, top.CacheKey, now); err != nil {
		return nil, fmt.Errorf("failed to record cache hit: %w", err)
	}
	top.UsageCount++
	top.LastUsedAt = now

	logger.Debugf("cache hit for %s (similarity=%.4f, uses=%d)",
		lo.Ellipsis(prompt, 40), top.Similarity, top.UsageCount)

	return &Match{Entry: top.Entry, Similarity: top.Similarity}, nil
}

// Store writes a generation result through to the persisted store, keyed by
// the normalized prompt's hash. Repeated stores of the same prompt replace
// the artifact and embedding but never inflate the usage count.
func (e *Engine) Store(ctx context.Context, prompt string, artifact Artifact, tokensUsed int64, model string) error {
	vec, err := e.embedder.Embed(ctx, prompt)
	if err != nil {
		return fmt.Errorf("failed to embed prompt: %w", err)
	}

	now := time.Now().UTC()
	entry := &Entry{
		CacheKey:    Key(prompt),
		Prompt:      prompt,
		Embedding:   vec,
		Schema:      artifact.Schema,
		SQL:         artifact.SQL,
		ModelUsed:   model,
		TokensSaved: tokensUsed,
		UsageCount:  1,
		CreatedAt:   now,
		LastUsedAt:  now,
	}

	if err := e.store.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	logger.Tracef("cached generation result for %s (key=%s, tokens=%d)",
		lo.Ellipsis(prompt, 40), entry.CacheKey[:12], tokensUsed)
	return nil
}

// Invalidate removes the entry with the given cache key. Absent keys are a
// no-op, not an error.
func (e *Engine) Invalidate(ctx context.Context, cacheKey string) error {
	if err := e.store.DeleteByKey(ctx, cacheKey); err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}

// Stats aggregates across all rows. Savings only accrue from reuse: the
// initial store of an entry is not a saving, so hits and tokens saved are
// both weighted by (usage_count - 1). An empty store yields zeros.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	totals, err := e.store.Aggregate(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to aggregate cache stats: %w", err)
	}
	return Stats{
		TotalCached:      totals.Cached,
		TotalHits:        totals.Hits,
		TotalTokensSaved: totals.TokensSaved,
		EstimatedSavings: e.pricing.CostSavings(totals.TokensSaved),
	}, nil
}

// PruneOldCache deletes every entry whose last_used_at is older than
// maxAgeDays and returns the count removed. It is invoked by an external
// scheduler, never self-scheduled, so the store can transiently exceed any
// target size between sweeps.
func (e *Engine) PruneOldCache(ctx context.Context, maxAgeDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	removed, err := e.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	if removed > 0 {
		logger.Infof("pruned %d cache entries unused for over %d days", removed, maxAgeDays)
	}
	return removed, nil
}

// MostUsedPrompts returns the top-limit entries by usage count, a read-only
// ranking view for diagnostics.
func (e *Engine) MostUsedPrompts(ctx context.Context, limit int) ([]Entry, error) {
	entries, err := e.store.TopByUsage(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank cache entries: %w", err)
	}
	return entries, nil
}
