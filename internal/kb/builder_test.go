package kb

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"persona-rag/internal/chunker"
	"persona-rag/internal/domain"
	"persona-rag/internal/embedding/tfidf"
	"persona-rag/internal/summarizer"
	"persona-rag/internal/vectorstore/memory"
)

type hashEmbedder struct{ calls int }

func (h *hashEmbedder) Name() string { return "hash" }

func (h *hashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	h.calls++
	f := fnv.New32a()
	_, _ = f.Write([]byte(text))
	s := f.Sum32()
	return []float64{float64(s%7) + 1, float64(s%11) + 1, float64(s%13) + 1}, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Name() string { return "failing" }

func (failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("embedding service down")
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func newTestBuilder(t *testing.T, corpus string, emb domain.Embedder, store *memory.Storage) (*Builder, Options) {
	t.Helper()
	out := t.TempDir()
	opts := Options{
		CorpusDir:   corpus,
		RoutingPath: filepath.Join(out, "routing.txt"),
		StatePath:   filepath.Join(out, "embedder.json"),
	}
	b := NewBuilder(opts,
		chunker.NewRecursiveChunker(600, 150, chunker.DefaultSeparators),
		summarizer.NewTagSummarizer(10, 20),
		emb, store, nil)
	return b, opts
}

var sampleCorpus = map[string]string{
	"A.txt":           "[Archive Type: Daily Slice]\n[Key Characters: Aya, Hina]\nAya practised her autograph all afternoon.",
	"B2.txt":          "[Story Stage: Band Formation]\nHina and Sayo made up after the live show.\n\nThey walked home together.",
	"00_glossary.txt": "ksm = Kasumi Toyama\nAya = Maruyama Aya",
	"empty.txt":       "   \n\n  ",
}

func TestBuild_RoutingTableAndChunks(t *testing.T) {
	store := memory.NewStorage()
	b, opts := newTestBuilder(t, writeCorpus(t, sampleCorpus), &hashEmbedder{}, store)

	report, err := b.Build(context.Background())
	require.NoError(t, err)

	want := strings.Join([]string{
		"- 00_glossary.txt: " + summarizer.GlossarySummary,
		"- A.txt: Daily Slice / Aya, Hina",
		"- B2.txt: Band Formation",
		"- empty.txt: " + summarizer.FallbackSummary,
	}, "\n")
	require.Equal(t, want, report.RoutingTable)

	onDisk, err := LoadRoutingTable(opts.RoutingPath)
	require.NoError(t, err)
	require.Equal(t, want, onDisk)

	// The whitespace-only archive contributes a routing line but no chunks.
	require.Len(t, report.Archives, 4)
	for _, a := range report.Archives {
		if a.Filename == "empty.txt" {
			require.Zero(t, a.Chunks)
		} else {
			require.Equal(t, 1, a.Chunks, a.Filename)
		}
	}

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Equal(t, 3, report.Chunks)
}

func TestBuild_ChunksCarryBareSourceAndMarker(t *testing.T) {
	store := memory.NewStorage()
	b, _ := newTestBuilder(t, writeCorpus(t, sampleCorpus), &hashEmbedder{}, store)
	_, err := b.Build(context.Background())
	require.NoError(t, err)

	res, err := store.Search(context.Background(), []float64{1, 1, 1}, 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	for _, r := range res {
		_, statErr := os.Stat(filepath.Join(b.opts.CorpusDir, r.Chunk.Source))
		require.NoError(t, statErr, "source %q must name a corpus archive", r.Chunk.Source)
		require.Equal(t, DefaultCategory, r.Chunk.Category)
		require.True(t, strings.HasPrefix(r.Chunk.Content, "[source: "+r.Chunk.Source+"]\n"))
		require.NotEmpty(t, strings.TrimSpace(strings.TrimPrefix(r.Chunk.Content, SourceMarker(r.Chunk.Source))))
	}
}

func TestBuild_ShortArchiveIsOnePrefixedChunk(t *testing.T) {
	store := memory.NewStorage()
	content := "Aya practised her autograph all afternoon."
	b, _ := newTestBuilder(t, writeCorpus(t, map[string]string{"C.txt": content}), &hashEmbedder{}, store)
	_, err := b.Build(context.Background())
	require.NoError(t, err)

	res, err := store.Search(context.Background(), []float64{1, 1, 1}, 10, []string{"C.txt"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "[source: C.txt]\n"+content, res[0].Chunk.Content)
}

func TestBuild_IsIdempotent(t *testing.T) {
	store := memory.NewStorage()
	b, opts := newTestBuilder(t, writeCorpus(t, sampleCorpus), &hashEmbedder{}, store)

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	first, err := os.ReadFile(opts.RoutingPath)
	require.NoError(t, err)
	firstCount, err := store.Count(context.Background())
	require.NoError(t, err)

	_, err = b.Build(context.Background())
	require.NoError(t, err)
	second, err := os.ReadFile(opts.RoutingPath)
	require.NoError(t, err)
	secondCount, err := store.Count(context.Background())
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, firstCount, secondCount)
}

func TestBuild_InvalidUTF8ArchiveStillRouted(t *testing.T) {
	corpus := writeCorpus(t, map[string]string{"A.txt": "[Archive Type: Daily Slice]\nfine"})
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "bad.txt"), []byte{0xff, 0xfe, 0x00, 'x'}, 0o644))

	store := memory.NewStorage()
	b, _ := newTestBuilder(t, corpus, &hashEmbedder{}, store)
	report, err := b.Build(context.Background())
	require.NoError(t, err)

	require.Contains(t, report.RoutingTable, "- bad.txt: ")
	require.Equal(t, "bad.txt", report.Archives[1].Filename)
	require.Error(t, report.Archives[1].Err)
	require.Zero(t, report.Archives[1].Chunks)
	require.Equal(t, 1, report.Chunks)
}

func TestBuild_EmptyCorpus(t *testing.T) {
	b, _ := newTestBuilder(t, t.TempDir(), &hashEmbedder{}, memory.NewStorage())
	_, err := b.Build(context.Background())
	require.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestBuild_EmbeddingFailureAborts(t *testing.T) {
	b, _ := newTestBuilder(t, writeCorpus(t, sampleCorpus), failingEmbedder{}, memory.NewStorage())
	_, err := b.Build(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "embedding service down")
}

func TestBuild_FailedRebuildLeavesNoStaleChunks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	emb := tfidf.NewEmbedder()
	first, opts := newTestBuilder(t, writeCorpus(t, sampleCorpus), emb, store)
	_, err := first.Build(ctx)
	require.NoError(t, err)
	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.Positive(t, n)
	require.FileExists(t, opts.StatePath)

	rebuild := opts
	rebuild.CorpusDir = writeCorpus(t, map[string]string{"Z.txt": "[Archive Type: New]\nA brand new story."})
	second := NewBuilder(rebuild,
		chunker.NewRecursiveChunker(600, 150, chunker.DefaultSeparators),
		summarizer.NewTagSummarizer(10, 20),
		failingEmbedder{}, store, nil)
	_, err = second.Build(ctx)
	require.Error(t, err)

	n, err = store.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoFileExists(t, opts.StatePath)

	table, err := LoadRoutingTable(opts.RoutingPath)
	require.NoError(t, err)
	require.Equal(t, "- Z.txt: New", table)
}

func TestBuild_PersistsTFIDFState(t *testing.T) {
	emb := tfidf.NewEmbedder()
	store := memory.NewStorage()
	b, opts := newTestBuilder(t, writeCorpus(t, sampleCorpus), emb, store)
	_, err := b.Build(context.Background())
	require.NoError(t, err)

	restored := tfidf.NewEmbedder()
	require.NoError(t, LoadEmbedderState(opts.StatePath, restored))

	query := "Hina and Sayo made up"
	want, err := emb.Embed(context.Background(), query)
	require.NoError(t, err)
	got, err := restored.Embed(context.Background(), query)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLoadEmbedderState_Missing(t *testing.T) {
	err := LoadEmbedderState(filepath.Join(t.TempDir(), "nope.json"), tfidf.NewEmbedder())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadRoutingTable_MissingIsEmpty(t *testing.T) {
	table, err := LoadRoutingTable(filepath.Join(t.TempDir(), "routing.txt"))
	require.NoError(t, err)
	require.Empty(t, table)
}

func TestBuild_ZeroChunkRebuildDropsOldState(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	b, opts := newTestBuilder(t, writeCorpus(t, sampleCorpus), tfidf.NewEmbedder(), store)
	_, err := b.Build(ctx)
	require.NoError(t, err)
	require.FileExists(t, opts.StatePath)

	rebuild := opts
	rebuild.CorpusDir = writeCorpus(t, map[string]string{"blank.txt": "  \n\n "})
	report, err := NewBuilder(rebuild,
		chunker.NewRecursiveChunker(600, 150, chunker.DefaultSeparators),
		summarizer.NewTagSummarizer(10, 20),
		tfidf.NewEmbedder(), store, nil).Build(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Chunks)
	require.NoFileExists(t, opts.StatePath)
}
