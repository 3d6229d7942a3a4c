// Package retriever runs similarity search restricted to routed archives.
package retriever

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"persona-rag/internal/domain"
	"persona-rag/internal/llm"
	"persona-rag/internal/scope"
	"persona-rag/internal/vectorstore"
)

// DefaultTopK is the number of chunks handed to the generator.
const DefaultTopK = 6

// DefaultPathPrefixes are directory names older builds recorded in front of
// the archive filename.
var DefaultPathPrefixes = []string{"data_source"}

// Status tells apart the outcomes of a retrieval.
type Status string

const (
	// StatusSkipped means the scope was NONE and no search ran.
	StatusSkipped Status = "skipped"
	// StatusEmpty means a search ran and matched nothing.
	StatusEmpty Status = "empty"
	StatusHit   Status = "hit"
	// StatusFailed means embedding or search failed; Chunks is empty.
	StatusFailed Status = "failed"
)

// Result is the outcome of one retrieval.
type Result struct {
	Status  Status
	Chunks  []domain.SearchResult
	Sources []string
	// Queries counts similarity searches issued (0 or 1).
	Queries int
}

// Options configures a Retriever.
type Options struct {
	TopK         int
	PathPrefixes []string
}

// Retriever embeds the query and searches the store filtered by source.
type Retriever struct {
	embedder domain.Embedder
	store    vectorstore.Storage
	opts     Options
	logger   *zap.Logger
}

func New(embedder domain.Embedder, store vectorstore.Storage, opts Options, logger *zap.Logger) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.PathPrefixes == nil {
		opts.PathPrefixes = DefaultPathPrefixes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, store: store, opts: opts, logger: logger.Named("retriever")}
}

// Retrieve searches for query within the archives named by sc. The Result
// is always usable; when embedding or search fails its status is
// StatusFailed and the error is returned alongside it.
func (r *Retriever) Retrieve(ctx context.Context, query string, sc scope.Scope) (Result, error) {
	if sc.IsNone() {
		return Result{Status: StatusSkipped}, nil
	}
	sources := r.Candidates(sc.Files)

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		err = llm.Wrap("embed query", err)
		r.logger.Warn("query embedding failed, no context", zap.String("kind", string(llm.KindOf(err))), zap.Error(err))
		return Result{Status: StatusFailed, Sources: sources}, err
	}
	hits, err := r.store.Search(ctx, vec, r.opts.TopK, sources)
	if err != nil {
		err = llm.Wrap("similarity search", fmt.Errorf("search %d sources: %w", len(sources), err))
		r.logger.Warn("similarity search failed, no context", zap.String("kind", string(llm.KindOf(err))), zap.Error(err))
		return Result{Status: StatusFailed, Sources: sources, Queries: 1}, err
	}
	res := Result{Status: StatusEmpty, Chunks: hits, Sources: sources, Queries: 1}
	if len(hits) > 0 {
		res.Status = StatusHit
	}
	for i, h := range hits {
		r.logger.Debug("retrieved chunk", zap.Int("rank", i+1), zap.String("source", h.Chunk.Source), zap.Float64("score", h.Score))
	}
	return res, nil
}

// Candidates expands each filename into the source forms it may have been
// stored under: the bare name, then each prefix joined with "/" and "\",
// then "./prefix/name". New builds only ever write the bare name.
func (r *Retriever) Candidates(files []string) []string {
	out := make([]string, 0, len(files)*(1+3*len(r.opts.PathPrefixes)))
	seen := make(map[string]struct{})
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, f := range files {
		add(f)
		for _, p := range r.opts.PathPrefixes {
			add(p + "/" + f)
			add(p + `\` + f)
			add("./" + p + "/" + f)
		}
	}
	return out
}
