package semcache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semcache_lookups_total",
		Help: "Similarity lookups by outcome (hit, miss, error).",
	}, []string{"outcome"})

	storeOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "semcache_store_op_duration_seconds",
		Help:    "Persisted-store operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	prunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "semcache_pruned_entries_total",
		Help: "Entries removed by eviction sweeps.",
	})
)

// InstrumentedStore wraps a Store with prometheus instrumentation. It adds
// no behavior; every call is delegated after timing.
type InstrumentedStore struct {
	next Store
}

// Instrument wraps store with metrics.
func Instrument(store Store) *InstrumentedStore {
	return &InstrumentedStore{next: store}
}

func (s *InstrumentedStore) observe(op string, start time.Time) {
	storeOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *InstrumentedStore) Upsert(ctx context.Context, entry *Entry) error {
	defer s.observe("upsert", time.Now())
	return s.next.Upsert(ctx, entry)
}

func (s *InstrumentedStore) GetByKey(ctx context.Context, cacheKey string) (*Entry, error) {
	defer s.observe("get_by_key", time.Now())
	return s.next.GetByKey(ctx, cacheKey)
}

func (s *InstrumentedStore) SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]Candidate, error) {
	defer s.observe("similarity_search", time.Now())
	candidates, err := s.next.SimilaritySearch(ctx, embedding, threshold, limit)
	switch {
	case err != nil:
		lookupTotal.WithLabelValues("error").Inc()
	case len(candidates) == 0:
		lookupTotal.WithLabelValues("miss").Inc()
	default:
		lookupTotal.WithLabelValues("hit").Inc()
	}
	return candidates, err
}

func (s *InstrumentedStore) RecordHit(ctx context.Context, cacheKey string, at time.Time) error {
	defer s.observe("record_hit", time.Now())
	return s.next.RecordHit(ctx, cacheKey, at)
}

func (s *InstrumentedStore) DeleteByKey(ctx context.Context, cacheKey string) error {
	defer s.observe("delete_by_key", time.Now())
	return s.next.DeleteByKey(ctx, cacheKey)
}

func (s *InstrumentedStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	defer s.observe("delete_older_than", time.Now())
	removed, err := s.next.DeleteOlderThan(ctx, cutoff)
	if err == nil && removed > 0 {
		prunedTotal.Add(float64(removed))
	}
	return removed, err
}

func (s *InstrumentedStore) Aggregate(ctx context.Context) (Totals, error) {
	defer s.observe("aggregate", time.Now())
	return s.next.Aggregate(ctx)
}

func (s *InstrumentedStore) TopByUsage(ctx context.Context, limit int) ([]Entry, error) {
	defer s.observe("top_by_usage", time.Now())
	return s.next.TopByUsage(ctx, limit)
}
