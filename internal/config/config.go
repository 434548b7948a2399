package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FilterConfig controls which files are eligible for ingestion.
type FilterConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
	SkipDirectories   []string `yaml:"skip_directories"`
	MinFileBytes      int64    `yaml:"min_file_bytes"`
	MaxFileBytes      int64    `yaml:"max_file_bytes"`
}

// ChunkingConfig controls how documents are split into chunks.
type ChunkingConfig struct {
	MaxChunkSize      int      `yaml:"max_chunk_size"`
	OverlapSize       int      `yaml:"overlap_size"`
	SeparatorPriority []string `yaml:"separator_priority"`
}

// LLMConfig configures one model endpoint, for embeddings or generation.
type LLMConfig struct {
	Type        string `yaml:"type"` // "openai" or "ollama"
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Dimension   int    `yaml:"dimension"`
	BatchSize   int    `yaml:"batch_size"`
	MaxRetries  int    `yaml:"max_retries"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Key resolves the API key from the configured environment variable.
func (c *LLMConfig) Key() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// PGConfig contains connection details for the pgvector store.
type PGConfig struct {
	DSN         string `yaml:"dsn"`
	PasswordEnv string `yaml:"password_env"`
	Debug       bool   `yaml:"debug"`
}

// StoreConfig selects and configures the vector index backend.
type StoreConfig struct {
	Type     string   `yaml:"type"` // "chromem" or "pgvector"
	Path     string   `yaml:"path"` // persistence root for chromem
	Compress bool     `yaml:"compress"`
	PG       PGConfig `yaml:"pg"`
}

// RetrievalConfig controls query-time behavior.
type RetrievalConfig struct {
	SearchK      int     `yaml:"search_k"`
	DedupEpsilon float32 `yaml:"dedup_epsilon"`
}

// QuotaConfig controls the storage ceiling and its measurement cache.
type QuotaConfig struct {
	StorageLimitBytes    int64 `yaml:"storage_limit_bytes"`
	WarningThresholdPct  int   `yaml:"warning_threshold_pct"`
	CriticalThresholdPct int   `yaml:"critical_threshold_pct"`
	CacheTTLSeconds      int   `yaml:"cache_ttl_seconds"`
}

type Config struct {
	Filter     FilterConfig    `yaml:"filter"`
	Chunking   ChunkingConfig  `yaml:"chunking"`
	Embedding  LLMConfig       `yaml:"embedding"`
	Generation LLMConfig       `yaml:"generation"`
	Store      StoreConfig     `yaml:"store"`
	Retrieval  RetrievalConfig `yaml:"retrieval"`
	Quota      QuotaConfig     `yaml:"quota"`
}

// Default returns a configuration with every option at its default.
func Default() *Config {
	return &Config{
		Filter: FilterConfig{
			AllowedExtensions: []string{".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".go", ".rs"},
			SkipDirectories:   []string{"node_modules", "__pycache__", ".git", "venv", "env", "dist", "build", ".next"},
			MinFileBytes:      10,
			MaxFileBytes:      100 * 1024,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize:      1000,
			OverlapSize:       200,
			SeparatorPriority: []string{"\n\n", "\n", " "},
		},
		Embedding: LLMConfig{
			Type:        "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "nomic-embed-text",
			Dimension:   768,
			BatchSize:   32,
			MaxRetries:  3,
			TimeoutSecs: 60,
		},
		Generation: LLMConfig{
			Type:        "openai",
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			TimeoutSecs: 60,
		},
		Store: StoreConfig{
			Type: "chromem",
			Path: "./chromemdb",
		},
		Retrieval: RetrievalConfig{
			SearchK:      5,
			DedupEpsilon: 0.05,
		},
		Quota: QuotaConfig{
			StorageLimitBytes:    1024 * 1024 * 1024,
			WarningThresholdPct:  80,
			CriticalThresholdPct: 95,
			CacheTTLSeconds:      30,
		},
	}
}

// Load reads a yaml config file and fills unset options with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %v", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults repairs values a partial config file may have zeroed.
func (c *Config) applyDefaults() {
	d := Default()
	if len(c.Filter.AllowedExtensions) == 0 {
		c.Filter.AllowedExtensions = d.Filter.AllowedExtensions
	}
	if c.Filter.MaxFileBytes <= 0 {
		c.Filter.MaxFileBytes = d.Filter.MaxFileBytes
	}
	if c.Filter.MinFileBytes < 0 {
		c.Filter.MinFileBytes = d.Filter.MinFileBytes
	}
	if c.Chunking.MaxChunkSize <= 0 {
		c.Chunking.MaxChunkSize = d.Chunking.MaxChunkSize
	}
	if c.Chunking.OverlapSize < 0 || c.Chunking.OverlapSize >= c.Chunking.MaxChunkSize {
		c.Chunking.OverlapSize = c.Chunking.MaxChunkSize / 5
	}
	if len(c.Chunking.SeparatorPriority) == 0 {
		c.Chunking.SeparatorPriority = d.Chunking.SeparatorPriority
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = d.Embedding.BatchSize
	}
	if c.Embedding.MaxRetries < 0 {
		c.Embedding.MaxRetries = d.Embedding.MaxRetries
	}
	if c.Store.Type == "" {
		c.Store.Type = d.Store.Type
	}
	if c.Store.Path == "" {
		c.Store.Path = d.Store.Path
	}
	if c.Retrieval.SearchK <= 0 {
		c.Retrieval.SearchK = d.Retrieval.SearchK
	}
	if c.Retrieval.DedupEpsilon <= 0 {
		c.Retrieval.DedupEpsilon = d.Retrieval.DedupEpsilon
	}
	if c.Quota.StorageLimitBytes <= 0 {
		c.Quota.StorageLimitBytes = d.Quota.StorageLimitBytes
	}
	if c.Quota.WarningThresholdPct <= 0 {
		c.Quota.WarningThresholdPct = d.Quota.WarningThresholdPct
	}
	if c.Quota.CriticalThresholdPct <= 0 {
		c.Quota.CriticalThresholdPct = d.Quota.CriticalThresholdPct
	}
	if c.Quota.CacheTTLSeconds <= 0 {
		c.Quota.CacheTTLSeconds = d.Quota.CacheTTLSeconds
	}
}
