package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"persona-rag/internal/config"
	"persona-rag/internal/scope"
	"persona-rag/internal/vectorstore"
)

func writeCorpus(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	files := map[string]string{
		"00_glossary.txt": "彩 = Aya\n日菜 = Hina\n",
		"A1.txt":          "标题：Daily Slice\n角色：Aya, Hina\n\nAya practised her smile in the mirror before the live.",
		"B1.txt":          "标题：Tea Time\n角色：Chisato\n\nChisato ordered jasmine tea for everyone.",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func testConfig(t *testing.T, storeType string) *config.AppConfig {
	t.Helper()
	root := t.TempDir()
	writeCorpus(t, filepath.Join(root, "data_source"))
	yml := "corpus:\n  dir: " + filepath.Join(root, "data_source") + "\n" +
		"store:\n  type: " + storeType + "\n  dir: " + filepath.Join(root, "kb") + "\n  collection: test\n" +
		"embedder:\n  type: tfidf\n" +
		"llm:\n  api_key_env: PERSONA_RAG_TEST_KEY\n  model: test-model\n"
	path := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("PERSONA_RAG_TEST_KEY", "sk-test")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestOpenStore_MissingBeforeBuild(t *testing.T) {
	cfg := testConfig(t, "sqlite")
	_, err := openStore(context.Background(), cfg)
	require.ErrorIs(t, err, vectorstore.ErrStoreMissing)

	_, err = newRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorIs(t, err, vectorstore.ErrStoreMissing)
}

func TestUnknownComponentTypes(t *testing.T) {
	cfg := testConfig(t, "sqlite")

	cfg.Store.Type = "cassandra"
	_, err := createStore(cfg)
	require.ErrorContains(t, err, "unknown vector store")

	cfg.Embedder.Type = "word2vec"
	_, err = newEmbedder(cfg)
	require.ErrorContains(t, err, "unknown embedder")
}

func TestBuildThenServe_SQLite(t *testing.T) {
	cfg := testConfig(t, "sqlite")
	ctx := context.Background()

	emb, err := newEmbedder(cfg)
	require.NoError(t, err)
	store, err := createStore(cfg)
	require.NoError(t, err)
	report, err := newBuilder(cfg, emb, store, zap.NewNop()).Build(ctx)
	require.NoError(t, err)
	require.Len(t, report.Archives, 3)
	require.NoError(t, store.Close())

	rt, err := newRuntime(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	n, err := rt.store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, report.Chunks, n)

	// TF-IDF state was reloaded, so scoped search works without a rebuild.
	vec, err := rt.embedder.Embed(ctx, "jasmine tea")
	require.NoError(t, err)
	sources := rt.retriever.Candidates(scope.Parse("B1.txt", 0).Files)
	hits, err := rt.store.Search(ctx, vec, 6, sources)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		require.Equal(t, "B1.txt", h.Chunk.Source)
	}
}

func TestNewRuntime_MemoryBuildsInProcess(t *testing.T) {
	cfg := testConfig(t, "memory")
	ctx := context.Background()

	rt, err := newRuntime(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	n, err := rt.store.Count(ctx)
	require.NoError(t, err)
	require.Positive(t, n)
	require.FileExists(t, cfg.Store.RoutingPath())
}

func TestNewRuntime_MissingAPIKey(t *testing.T) {
	cfg := testConfig(t, "memory")
	t.Setenv("PERSONA_RAG_TEST_KEY", "")

	_, err := newRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "missing API key")
}
