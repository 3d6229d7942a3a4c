package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"persona-rag/internal/chunker"
	"persona-rag/internal/config"
	"persona-rag/internal/domain"
	"persona-rag/internal/embedding"
	"persona-rag/internal/embedding/openai"
	"persona-rag/internal/embedding/tfidf"
	"persona-rag/internal/generator"
	"persona-rag/internal/kb"
	"persona-rag/internal/llm"
	"persona-rag/internal/retriever"
	"persona-rag/internal/rewrite"
	"persona-rag/internal/scope"
	"persona-rag/internal/service"
	"persona-rag/internal/session"
	"persona-rag/internal/summarizer"
	"persona-rag/internal/vectorstore"
	"persona-rag/internal/vectorstore/memory"
	"persona-rag/internal/vectorstore/qdrant"
	"persona-rag/internal/vectorstore/sqlite"
)

// runtime holds everything the online commands need.
type runtime struct {
	cfg       *config.AppConfig
	logger    *zap.Logger
	store     vectorstore.Storage
	embedder  domain.Embedder
	retriever *retriever.Retriever
	service   *service.RAGService
}

func (r *runtime) Close() {
	if r.store != nil {
		_ = r.store.Close()
	}
	_ = r.logger.Sync()
}

func newEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		oc := cfg.Embedder.OpenAI
		if oc == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			MaxRetries: cfg.LLM.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func newQdrant(cfg *config.AppConfig) *qdrant.Storage {
	q := cfg.Store.Qdrant
	return qdrant.NewStorage(qdrant.Config{
		URL:        q.URL,
		APIKey:     q.APIKey,
		Collection: cfg.Store.Collection,
		Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
	})
}

// createStore opens the chunk store for a rebuild.
func createStore(cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.Store.Type {
	case "sqlite", "":
		return sqlite.Create(cfg.Store.DBPath(), cfg.Store.Collection)
	case "qdrant":
		return newQdrant(cfg), nil
	case "memory":
		return memory.NewStorage(), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Store.Type)
	}
}

// openStore opens an already built chunk store for serving.
func openStore(ctx context.Context, cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.Store.Type {
	case "sqlite", "":
		return sqlite.Open(ctx, cfg.Store.DBPath(), cfg.Store.Collection)
	case "qdrant":
		s := newQdrant(cfg)
		if _, err := s.Count(ctx); err != nil {
			return nil, fmt.Errorf("%w: qdrant collection %q: %v", vectorstore.ErrStoreMissing, cfg.Store.Collection, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store type %s cannot be opened without a build", cfg.Store.Type)
	}
}

func newBuilder(cfg *config.AppConfig, emb domain.Embedder, store vectorstore.Storage, logger *zap.Logger) *kb.Builder {
	return kb.NewBuilder(
		kb.Options{
			CorpusDir:   cfg.Corpus.Dir,
			RoutingPath: cfg.Store.RoutingPath(),
			StatePath:   cfg.Store.EmbedderStatePath(),
		},
		chunker.NewRecursiveChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap, cfg.Chunker.Separators),
		summarizer.NewTagSummarizer(cfg.Summarizer.HeadLines, cfg.Summarizer.MaxTagLen),
		emb, store, logger,
	)
}

func newCompleter(cfg *config.AppConfig) (domain.Completer, error) {
	return llm.NewClient(llm.Config{
		BaseURL:    cfg.LLM.BaseURL,
		APIKeyEnv:  cfg.LLM.APIKeyEnv,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.Timeout(),
		MaxRetries: cfg.LLM.MaxRetries,
	})
}

// newRuntime opens the persisted knowledge base and assembles the online
// pipeline. The memory store type is built in-process first.
func newRuntime(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*runtime, error) {
	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	var store vectorstore.Storage
	if cfg.Store.Type == "memory" {
		store = memory.NewStorage()
		if _, err := newBuilder(cfg, emb, store, logger).Build(ctx); err != nil {
			return nil, fmt.Errorf("in-process build: %w", err)
		}
	} else {
		store, err = openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if s, ok := emb.(embedding.Stateful); ok {
			err := kb.LoadEmbedderState(cfg.Store.EmbedderStatePath(), s)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				logger.Warn("no embedder state found; scoped retrieval will fail until the next build", zap.Error(err))
			case err != nil:
				_ = store.Close()
				return nil, fmt.Errorf("load embedder state: %w", err)
			}
		}
	}

	table, err := kb.LoadRoutingTable(cfg.Store.RoutingPath())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if table == "" {
		logger.Warn("routing table missing or empty; retrieval will never narrow scope", zap.String("path", cfg.Store.RoutingPath()))
	}
	glossary, err := rewrite.LoadGlossary(cfg.Corpus.GlossaryPath())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if glossary == "" {
		logger.Info("no glossary loaded; first messages pass through unrewritten")
	}

	completer, err := newCompleter(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	queryEmbedder := embedding.WrapWithLRU(emb, cfg.Embedder.Cache.Size, time.Duration(cfg.Embedder.Cache.TTLSecs)*time.Second, logger)
	rv := retriever.New(queryEmbedder, store, retriever.Options{
		TopK:         cfg.Retriever.TopK,
		PathPrefixes: cfg.Retriever.PathPrefixes,
	}, logger)

	p := cfg.Persona
	svc := service.NewRAGService(
		rewrite.New(completer, rewrite.Options{
			Glossary:     glossary,
			HistoryTurns: cfg.Rewriter.HistoryTurns,
			Franchise:    p.Franchise,
		}, logger),
		scope.NewRouter(completer, scope.Options{MaxFiles: cfg.Router.MaxFiles, Franchise: p.Franchise}, logger),
		rv,
		generator.New(completer, generator.Options{
			Persona:     generator.Persona{Name: p.Name, Franchise: p.Franchise, Emoticons: p.Emoticons, Apology: p.Apology},
			Temperature: cfg.LLM.Temperature,
		}, logger),
		session.NewStore(cfg.Session.MaxTurns),
		table,
		logger,
	)
	logger.Info("pipeline ready",
		zap.String("store", cfg.Store.Type),
		zap.String("embedder", emb.Name()),
		zap.String("model", cfg.LLM.Model),
	)
	return &runtime{cfg: cfg, logger: logger, store: store, embedder: queryEmbedder, retriever: rv, service: svc}, nil
}
