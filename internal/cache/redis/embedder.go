package redis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/docsense/backend/internal/chunkstore"
	"github.com/docsense/backend/pkg/logger"
)

// CachedEmbedder wraps an embedder with the Redis embedding cache. Embeddings
// are deterministic per model, so identical text always reuses the cached
// vector. Cache failures fall through to the inner embedder.
type CachedEmbedder struct {
	inner chunkstore.Embedder
	cache *Client
	ttl   time.Duration
}

func NewCachedEmbedder(inner chunkstore.Embedder, cache *Client, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, ttl: ttl}
}

func (e *CachedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := HashText(text)

	if cached, ok, err := e.cache.GetEmbedding(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		logger.Debug("embedding cache read failed", zap.Error(err))
	}

	embedding, err := e.inner.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetEmbedding(ctx, key, embedding, e.ttl); err != nil {
		logger.Debug("embedding cache write failed", zap.Error(err))
	}

	return embedding, nil
}
