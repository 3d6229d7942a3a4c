package embedding

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"persona-rag/internal/domain"
)

// WrapWithLRU caches query embeddings in memory. Rewritten queries repeat
// often within a conversation, so hits skip a remote round trip.
func WrapWithLRU(e domain.Embedder, size int, ttl time.Duration, logger *zap.Logger) domain.Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &lruEmbedder{
		next:   e,
		cache:  expirable.NewLRU[string, []float64](size, nil, ttl),
		logger: logger,
	}
}

type lruEmbedder struct {
	next   domain.Embedder
	cache  *expirable.LRU[string, []float64]
	logger *zap.Logger
}

func (l *lruEmbedder) Name() string { return l.next.Name() }

func (l *lruEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if cached, ok := l.cache.Get(text); ok {
		l.logger.Debug("embedding cache hit", zap.String("embedder", l.next.Name()))
		return cloneVector(cached), nil
	}
	v, err := l.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	l.cache.Add(text, cloneVector(v))
	return v, nil
}

func cloneVector(v []float64) []float64 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
