package vectorstore

import (
	"context"
	"errors"
	"slices"

	"persona-rag/internal/domain"
)

// ErrStoreMissing is returned when a persisted chunk store has not been built.
var ErrStoreMissing = errors.New("chunk store not found; run the build command first")

// Storage persists chunk vectors and supports similarity search restricted
// to a set of source filenames.
type Storage interface {
	// Init drops any existing collection and prepares an empty one.
	// A zero dimension means no vectors will be written.
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error
	// Search returns the topK best chunks whose source is in sources.
	// An empty sources slice disables filtering.
	Search(ctx context.Context, vector []float64, topK int, sources []string) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// TopK sorts results by descending score, keeping insertion order among
// equal scores, and truncates to k.
func TopK(results []domain.SearchResult, k int) []domain.SearchResult {
	if k <= 0 {
		k = 5
	}
	slices.SortStableFunc(results, func(a, b domain.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if k < len(results) {
		results = results[:k]
	}
	return results
}

// SourceSet builds a membership set for a source filter. A nil set means
// no filtering.
func SourceSet(sources []string) map[string]struct{} {
	if len(sources) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		set[s] = struct{}{}
	}
	return set
}
