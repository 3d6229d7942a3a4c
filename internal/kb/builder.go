// Package kb builds the searchable knowledge base from the archive corpus:
// chunk vectors in the similarity store plus the routing table.
package kb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"persona-rag/internal/domain"
	"persona-rag/internal/embedding"
	"persona-rag/internal/vectorstore"
)

// DefaultCategory tags every chunk produced from the corpus.
const DefaultCategory = "persona_memory"

const upsertBatchSize = 64

// ErrEmptyCorpus is returned when the corpus directory holds no archives.
var ErrEmptyCorpus = errors.New("no .txt archives found in corpus directory")

// Options configures a Builder.
type Options struct {
	CorpusDir   string
	RoutingPath string
	// StatePath receives the fitted embedder state when the embedder is
	// embedding.Stateful. Empty disables persistence.
	StatePath string
	Category  string
}

// Builder performs full rebuilds of the knowledge base.
type Builder struct {
	opts       Options
	segmenter  domain.Segmenter
	summarizer domain.ArchiveSummarizer
	embedder   domain.Embedder
	store      vectorstore.Storage
	logger     *zap.Logger
}

// ArchiveReport describes what one archive contributed to a build.
type ArchiveReport struct {
	Filename string
	Summary  string
	Chunks   int
	Err      error
}

// Report summarises a build.
type Report struct {
	Archives     []ArchiveReport
	Chunks       int
	RoutingTable string
}

func NewBuilder(opts Options, segmenter domain.Segmenter, summarizer domain.ArchiveSummarizer, embedder domain.Embedder, store vectorstore.Storage, logger *zap.Logger) *Builder {
	if opts.Category == "" {
		opts.Category = DefaultCategory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		opts:       opts,
		segmenter:  segmenter,
		summarizer: summarizer,
		embedder:   embedder,
		store:      store,
		logger:     logger.Named("kb"),
	}
}

// Build replaces the routing table and the store contents with a fresh
// build of every archive in the corpus directory.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	// Chunks, routing table and embedder state are all from one pass or absent.
	if err := removeIfExists(b.opts.RoutingPath); err != nil {
		return nil, fmt.Errorf("remove old routing table: %w", err)
	}
	if b.opts.StatePath != "" {
		if err := removeIfExists(b.opts.StatePath); err != nil {
			return nil, fmt.Errorf("remove old embedder state: %w", err)
		}
	}
	if err := b.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear old store: %w", err)
	}

	paths, err := filepath.Glob(filepath.Join(b.opts.CorpusDir, "*.txt"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCorpus, b.opts.CorpusDir)
	}
	sort.Strings(paths)
	b.logger.Info("scanning corpus", zap.String("dir", b.opts.CorpusDir), zap.Int("archives", len(paths)))

	report := &Report{}
	entries := make([]domain.RoutingEntry, 0, len(paths))
	var chunks []domain.Chunk
	for _, p := range paths {
		name := filepath.Base(p)
		entry := domain.RoutingEntry{Filename: name, Summary: b.summarizer.Summarize(p)}
		entries = append(entries, entry)

		archiveChunks, err := b.chunkArchive(p)
		if err != nil {
			b.logger.Warn("skipping archive content", zap.String("archive", name), zap.Error(err))
		}
		chunks = append(chunks, archiveChunks...)
		report.Archives = append(report.Archives, ArchiveReport{Filename: name, Summary: entry.Summary, Chunks: len(archiveChunks), Err: err})
		b.logger.Debug("archive processed", zap.String("archive", name), zap.Int("chunks", len(archiveChunks)), zap.String("route", entry.Line()))
	}

	report.RoutingTable = RenderRoutingTable(entries)
	if err := WriteRoutingTable(b.opts.RoutingPath, entries); err != nil {
		return nil, fmt.Errorf("write routing table: %w", err)
	}
	b.logger.Info("routing table written", zap.String("path", b.opts.RoutingPath), zap.Int("entries", len(entries)))

	if err := b.index(ctx, chunks); err != nil {
		return nil, err
	}
	report.Chunks = len(chunks)
	b.logger.Info("build complete", zap.Int("chunks", len(chunks)), zap.String("embedder", b.embedder.Name()))
	return report, nil
}

// chunkArchive reads one archive and returns its non-empty, source-prefixed chunks.
func (b *Builder) chunkArchive(path string) ([]domain.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, errors.New("archive is not valid UTF-8")
	}
	name := filepath.Base(path)
	var out []domain.Chunk
	for text := range b.segmenter.Segment(string(data)) {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, domain.Chunk{
			Content:  SourceMarker(name) + "\n" + text,
			Source:   name,
			Category: b.opts.Category,
		})
	}
	return out, nil
}

// SourceMarker is the human-readable prefix placed before every chunk.
func SourceMarker(filename string) string {
	return "[source: " + filename + "]"
}

func (b *Builder) index(ctx context.Context, chunks []domain.Chunk) error {
	if p, ok := b.embedder.(embedding.Preparer); ok && len(chunks) > 0 {
		corpus := make([]string, len(chunks))
		for i := range chunks {
			corpus[i] = chunks[i].Content
		}
		if err := p.Prepare(corpus); err != nil {
			return fmt.Errorf("prepare embedder: %w", err)
		}
	}

	vectors := make([][]float64, len(chunks))
	for i := range chunks {
		v, err := b.embedder.Embed(ctx, chunks[i].Content)
		if err != nil {
			return fmt.Errorf("embed chunk %d of %s: %w", i, chunks[i].Source, err)
		}
		vectors[i] = v
	}

	dimension := 0
	if len(vectors) > 0 {
		dimension = len(vectors[0])
	}
	if err := b.store.Init(ctx, dimension); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		if err := b.store.Upsert(ctx, chunks[start:end], vectors[start:end]); err != nil {
			return fmt.Errorf("upsert chunks: %w", err)
		}
	}

	if s, ok := b.embedder.(embedding.Stateful); ok && b.opts.StatePath != "" && len(chunks) > 0 {
		if err := SaveEmbedderState(b.opts.StatePath, s); err != nil {
			return fmt.Errorf("save embedder state: %w", err)
		}
	}
	return nil
}

func removeIfExists(path string) error {
	if path == "" {
		return errors.New("path is empty")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
