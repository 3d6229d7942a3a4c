package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CorpusConfig locates the archive corpus.
type CorpusConfig struct {
	Dir          string `yaml:"dir"`
	GlossaryFile string `yaml:"glossary_file"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// StoreConfig selects and configures the chunk store.
type StoreConfig struct {
	Type       string        `yaml:"type"`
	Dir        string        `yaml:"dir"`
	Collection string        `yaml:"collection"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// CacheConfig sizes the query-embedding cache. Size 0 disables it.
type CacheConfig struct {
	Size    int `yaml:"size"`
	TTLSecs int `yaml:"ttl_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Cache  CacheConfig           `yaml:"cache"`
}

// LLMConfig configures the chat completion endpoint.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	// Temperature is for reply generation; nil means 0.7, 0 is deterministic.
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxRetries  int     `yaml:"max_retries"`
}

// ChunkerConfig configures how archives are split into chunks.
type ChunkerConfig struct {
	ChunkSize  int      `yaml:"chunk_size"`
	Overlap    int      `yaml:"overlap"`
	Separators []string `yaml:"separators,omitempty"`
}

type SummarizerConfig struct {
	HeadLines int `yaml:"head_lines"`
	MaxTagLen int `yaml:"max_tag_len"`
}

type RetrieverConfig struct {
	TopK         int      `yaml:"top_k"`
	PathPrefixes []string `yaml:"path_prefixes"`
}

type RouterConfig struct {
	MaxFiles int `yaml:"max_files"`
}

type RewriterConfig struct {
	HistoryTurns int `yaml:"history_turns"`
}

// PersonaConfig describes the answering character.
type PersonaConfig struct {
	Name      string   `yaml:"name"`
	Franchise string   `yaml:"franchise"`
	Emoticons []string `yaml:"emoticons"`
	Apology   string   `yaml:"apology,omitempty"`
}

type SessionConfig struct {
	MaxTurns int `yaml:"max_turns"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// CORSOrigins limits browser origins; empty allows all.
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

// LogConfig controls zap output. File is rotated by lumberjack when set.
type LogConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	Production bool   `yaml:"production"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Corpus     CorpusConfig     `yaml:"corpus"`
	Store      StoreConfig      `yaml:"store"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	LLM        LLMConfig        `yaml:"llm"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Retriever  RetrieverConfig  `yaml:"retriever"`
	Router     RouterConfig     `yaml:"router"`
	Rewriter   RewriterConfig   `yaml:"rewriter"`
	Persona    PersonaConfig    `yaml:"persona"`
	Session    SessionConfig    `yaml:"session"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/persona-rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/persona-rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.Store.Type {
	case "sqlite", "memory":
	case "qdrant":
		if c.Store.Qdrant == nil || c.Store.Qdrant.URL == "" {
			errs = append(errs, errors.New("store.qdrant.url is required for qdrant store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store type %q", c.Store.Type))
	}
	switch c.Embedder.Type {
	case "tfidf", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown embedder type %q", c.Embedder.Type))
	}
	if c.Chunker.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunker.chunk_size must be positive"))
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("chunker.overlap %d must be in [0, chunk_size)", c.Chunker.Overlap))
	}
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("llm.temperature %v must be in [0, 2]", *t))
	}
	if c.Retriever.TopK < 1 || c.Retriever.TopK > 20 {
		errs = append(errs, fmt.Errorf("retriever.top_k %d must be in 1..20", c.Retriever.TopK))
	}
	if c.Router.MaxFiles < 1 {
		errs = append(errs, errors.New("router.max_files must be at least 1"))
	}
	if c.Corpus.Dir == "" {
		errs = append(errs, errors.New("corpus.dir is required"))
	}
	return errors.Join(errs...)
}

// Timeout returns the per-call completion timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RoutingPath is where the build writes the routing table.
func (c StoreConfig) RoutingPath() string { return filepath.Join(c.Dir, "routing_table.txt") }

// DBPath is the sqlite chunk store file.
func (c StoreConfig) DBPath() string { return filepath.Join(c.Dir, "chunks.db") }

// EmbedderStatePath holds fitted embedder state (TF-IDF vocabulary).
func (c StoreConfig) EmbedderStatePath() string { return filepath.Join(c.Dir, "embedder.json") }

// GlossaryPath is the alias glossary inside the corpus.
func (c CorpusConfig) GlossaryPath() string {
	if c.GlossaryFile == "" || filepath.IsAbs(c.GlossaryFile) {
		return c.GlossaryFile
	}
	return filepath.Join(c.Dir, c.GlossaryFile)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "persona-rag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Corpus:   CorpusConfig{Dir: "data_source", GlossaryFile: "00_glossary.txt"},
		Store:    StoreConfig{Type: "sqlite", Dir: "kb", Collection: "persona_memory_v3"},
		Embedder: EmbedderConfig{Type: "tfidf", Cache: CacheConfig{Size: 256, TTLSecs: 600}},
		LLM: LLMConfig{
			BaseURL:     "https://api.deepseek.com",
			APIKeyEnv:   "DEEPSEEK_API_KEY",
			Model:       "deepseek-chat",
			TimeoutSecs: 30,
			Temperature: floatPtr(0.7),
			MaxRetries:  2,
		},
		Chunker:    ChunkerConfig{ChunkSize: 600, Overlap: 150},
		Summarizer: SummarizerConfig{HeadLines: 10, MaxTagLen: 20},
		Retriever:  RetrieverConfig{TopK: 6, PathPrefixes: []string{"data_source"}},
		Router:     RouterConfig{MaxFiles: 3},
		Rewriter:   RewriterConfig{HistoryTurns: 4},
		Persona: PersonaConfig{
			Name:      "Maruyama Aya",
			Franchise: "BanG Dream! (Pastel*Palettes)",
			Emoticons: []string{"✨", "💦", "( > < )"},
		},
		Session: SessionConfig{MaxTurns: 20},
		Server:  ServerConfig{Addr: ":8000"},
		Log:     LogConfig{Level: "info"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Corpus.Dir == "" {
		cfg.Corpus.Dir = def.Corpus.Dir
	}
	if cfg.Corpus.GlossaryFile == "" {
		cfg.Corpus.GlossaryFile = def.Corpus.GlossaryFile
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = def.Store.Type
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = def.Store.Dir
	}
	if cfg.Store.Collection == "" {
		cfg.Store.Collection = def.Store.Collection
	}
	if cfg.Store.Qdrant != nil && cfg.Store.Qdrant.TimeoutSecs == 0 {
		cfg.Store.Qdrant.TimeoutSecs = 15
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.Embedder.Cache.Size > 0 && cfg.Embedder.Cache.TTLSecs == 0 {
		cfg.Embedder.Cache.TTLSecs = def.Embedder.Cache.TTLSecs
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = def.LLM.BaseURL
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = def.LLM.APIKeyEnv
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = def.LLM.TimeoutSecs
	}
	if cfg.LLM.Temperature == nil {
		cfg.LLM.Temperature = def.LLM.Temperature
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = def.Chunker.ChunkSize
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = def.Chunker.Overlap
	}
	if cfg.Summarizer.HeadLines == 0 {
		cfg.Summarizer.HeadLines = def.Summarizer.HeadLines
	}
	if cfg.Summarizer.MaxTagLen == 0 {
		cfg.Summarizer.MaxTagLen = def.Summarizer.MaxTagLen
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = def.Retriever.TopK
	}
	if cfg.Retriever.PathPrefixes == nil {
		cfg.Retriever.PathPrefixes = def.Retriever.PathPrefixes
	}
	if cfg.Router.MaxFiles == 0 {
		cfg.Router.MaxFiles = def.Router.MaxFiles
	}
	if cfg.Rewriter.HistoryTurns == 0 {
		cfg.Rewriter.HistoryTurns = def.Rewriter.HistoryTurns
	}
	if cfg.Persona.Name == "" {
		cfg.Persona = def.Persona
	}
	if cfg.Session.MaxTurns == 0 {
		cfg.Session.MaxTurns = def.Session.MaxTurns
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

func floatPtr(v float64) *float64 { return &v }
