// Package store provides persisted-store implementations for the semantic
// cache: an in-memory store for tests and local development, a SQLite store
// for single-node deployments, and a Postgres/pgvector store for shared
// ones.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Mvula88/easbase-semcache/semcache"
)

// Memory is an in-process semcache.Store. Similarity search is a full scan
// with cosine ranking. All operations take the mutex, which gives the same
// atomicity the SQL stores get from single statements.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*semcache.Entry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*semcache.Entry)}
}

func (m *Memory) Upsert(_ context.Context, entry *semcache.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneEntry(entry)
	if existing, ok := m.entries[entry.CacheKey]; ok {
		clone.UsageCount = existing.UsageCount
		clone.CreatedAt = existing.CreatedAt
	}
	m.entries[entry.CacheKey] = clone
	return nil
}

func (m *Memory) GetByKey(_ context.Context, cacheKey string) (*semcache.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[cacheKey]
	if !ok {
		return nil, semcache.ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (m *Memory) SimilaritySearch(_ context.Context, embedding []float32, threshold float64, limit int) ([]semcache.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []semcache.Candidate
	for _, entry := range m.entries {
		similarity := semcache.CosineSimilarity(embedding, entry.Embedding)
		if similarity >= threshold {
			candidates = append(candidates, semcache.Candidate{
				Entry:      *cloneEntry(entry),
				Similarity: similarity,
			})
		}
	}
	rankCandidates(candidates)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (m *Memory) RecordHit(_ context.Context, cacheKey string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A concurrently deleted key is a no-op, matching the SQL stores.
	if entry, ok := m.entries[cacheKey]; ok {
		entry.UsageCount++
		entry.LastUsedAt = at
	}
	return nil
}

func (m *Memory) DeleteByKey(_ context.Context, cacheKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, cacheKey)
	return nil
}

func (m *Memory) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, entry := range m.entries {
		if entry.LastUsedAt.Before(cutoff) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Aggregate(_ context.Context) (semcache.Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var totals semcache.Totals
	for _, entry := range m.entries {
		totals.Cached++
		reuses := entry.UsageCount - 1
		totals.Hits += reuses
		totals.TokensSaved += entry.TokensSaved * reuses
	}
	return totals, nil
}

func (m *Memory) TopByUsage(_ context.Context, limit int) ([]semcache.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]semcache.Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, *cloneEntry(entry))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UsageCount != entries[j].UsageCount {
			return entries[i].UsageCount > entries[j].UsageCount
		}
		return entries[i].LastUsedAt.After(entries[j].LastUsedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func rankCandidates(candidates []semcache.Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
}

func cloneEntry(entry *semcache.Entry) *semcache.Entry {
	clone := *entry
	clone.Embedding = append([]float32(nil), entry.Embedding...)
	clone.Schema = append([]byte(nil), entry.Schema...)
	return &clone
}
