package semcache

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	gocache "github.com/patrickmn/go-cache"
)

// OpenAIEmbedder is a real embedding provider behind the Embedder
// interface. Embeddings are memoized per normalized text; they are
// deterministic for a given input, so the memo never goes stale within its
// TTL.
type OpenAIEmbedder struct {
	client openai.Client
	model  openai.EmbeddingModel
	memo   *gocache.Cache
}

// NewOpenAIEmbedder creates an embedder backed by text-embedding-3-small,
// which produces vectors of exactly Dimensions length.
func NewOpenAIEmbedder(apiKey string, opts ...option.RequestOption) *OpenAIEmbedder {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		model:  openai.EmbeddingModelTextEmbedding3Small,
		memo:   gocache.New(24*time.Hour, time.Hour),
	}
}

func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = Normalize(text)
	memoKey := Key(text)
	if cached, ok := o.memo.Get(memoKey); ok {
		return cached.([]float32), nil
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:      o.model,
		Dimensions: openai.Int(Dimensions),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	raw := resp.Data[0].Embedding
	if len(raw) != Dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(raw), Dimensions)
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	o.memo.Set(memoKey, vec, gocache.DefaultExpiration)
	return vec, nil
}

func (o *OpenAIEmbedder) Dimensions() int {
	return Dimensions
}
