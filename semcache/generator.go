package semcache

import (
	"context"
	"fmt"

	"github.com/flanksource/commons/logger"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Generator is the expensive generation pipeline the cache fronts. The
// cache never invokes it on its own; CachedGenerator is the glue that
// checks the cache first and writes results through on a miss.
type Generator interface {
	// Generate produces the artifact for prompt, along with the token cost
	// of producing it and the model that did.
	Generate(ctx context.Context, prompt string) (Artifact, int64, string, error)
}

// Result is the outcome of a cache-fronted generation.
type Result struct {
	Artifact
	Model      string
	Cached     bool
	Similarity float64 // set when Cached
	TokensUsed int64   // tokens spent on this call; 0 when Cached
}

// CachedGenerator wraps a Generator with the cache. Lookup failures degrade
// to a miss so a cache outage costs latency, not correctness; write
// failures after generation are logged and the result still returned.
type CachedGenerator struct {
	engine    *Engine
	generator Generator
	threshold float64
}

// NewCachedGenerator fronts generator with engine. threshold <= 0 uses
// DefaultThreshold.
func NewCachedGenerator(engine *Engine, generator Generator, threshold float64) *CachedGenerator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &CachedGenerator{
		engine:    engine,
		generator: generator,
		threshold: threshold,
	}
}

// Generate returns a cached artifact when one matches, otherwise invokes
// the generator and stores its result.
func (g *CachedGenerator) Generate(ctx context.Context, prompt string) (Result, error) {
	match, err := g.engine.FindSimilar(ctx, prompt, g.threshold)
	if err != nil {
		logger.Warnf("cache lookup failed, treating as miss: %v", err)
	}
	if match != nil {
		return Result{
			Artifact:   Artifact{Schema: match.Schema, SQL: match.SQL},
			Model:      match.ModelUsed,
			Cached:     true,
			Similarity: match.Similarity,
		}, nil
	}

	requestID := uuid.NewString()
	logger.Debugf("[%s] generating for %s", requestID, lo.Ellipsis(prompt, 40))

	artifact, tokens, model, err := g.generator.Generate(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("generation failed: %w", err)
	}

	if err := g.engine.Store(ctx, prompt, artifact, tokens, model); err != nil {
		logger.Warnf("[%s] failed to cache generation result: %v", requestID, err)
	}

	return Result{
		Artifact:   artifact,
		Model:      model,
		TokensUsed: tokens,
	}, nil
}
