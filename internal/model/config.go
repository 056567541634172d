package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all inspecta settings.
// Durations are whole seconds so the YAML file stays human-editable.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking" mapstructure:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Vision    VisionConfig    `yaml:"vision" mapstructure:"vision"`
	Integrate IntegrateConfig `yaml:"integrate" mapstructure:"integrate"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Corpus    CorpusConfig    `yaml:"corpus" mapstructure:"corpus"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
}

// EmbeddingConfig selects the embedding backend
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"` // openai, ollama, hash
	Model      string `yaml:"model" mapstructure:"model"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	APIKey     string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"`       // seconds
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"` // hash embedder only
}

// ChunkingConfig controls corpus splitting
type ChunkingConfig struct {
	Size    int `yaml:"size" mapstructure:"size"`       // characters per chunk
	Overlap int `yaml:"overlap" mapstructure:"overlap"` // characters shared by adjacent chunks
}

// RetrievalConfig controls citation lookup
type RetrievalConfig struct {
	TopK      int     `yaml:"top_k" mapstructure:"top_k"`
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"` // minimum cosine similarity
	Timeout   int     `yaml:"timeout" mapstructure:"timeout"`     // seconds
}

// StoreConfig selects and locates the vector store
type StoreConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"` // sqlite, memory, postgres
	DataDir    string `yaml:"data_dir" mapstructure:"data_dir"`
	Collection string `yaml:"collection" mapstructure:"collection"`
	DSN        string `yaml:"dsn,omitempty" mapstructure:"dsn"` // postgres only
}

// VisionConfig selects the remote vision model
type VisionConfig struct {
	Provider   string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model      string  `yaml:"model" mapstructure:"model"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey     string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Timeout    int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens  int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// IntegrateConfig controls per-finding fan-out
type IntegrateConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// CacheConfig controls the embedding and extraction caches
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir       string `yaml:"dir" mapstructure:"dir"`
	MemoryTTL int    `yaml:"memory_ttl" mapstructure:"memory_ttl"` // seconds
	DiskTTL   int    `yaml:"disk_ttl" mapstructure:"disk_ttl"`     // seconds
}

// CorpusConfig locates the regulatory documents
type CorpusConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LogConfig controls logrus output
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file,omitempty" mapstructure:"file"`
}

// HTTPConfig holds proxy settings shared by all remote clients
type HTTPConfig struct {
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// DefaultCollection is the vector store collection holding the electrical norms
const DefaultCollection = "normas_electricas"

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	home := HomeDir()
	return Config{
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Model:      "text-embedding-3-small",
			Timeout:    30,
			Dimensions: 512,
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Retrieval: RetrievalConfig{
			TopK:      5,
			Threshold: 0.30,
			Timeout:   5,
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			DataDir:    filepath.Join(home, "data"),
			Collection: DefaultCollection,
		},
		Vision: VisionConfig{
			Provider:   "openai",
			Model:      "gpt-4o-mini",
			Timeout:    90,
			MaxTokens:  2000,
			MaxRetries: 2,
			RatePerSec: 1,
		},
		Integrate: IntegrateConfig{
			Concurrency: 4,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       filepath.Join(home, "cache"),
			MemoryTTL: 3600,
			DiskTTL:   30 * 24 * 3600,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// HomeDir returns the inspecta state directory (~/.inspecta)
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".inspecta"
	}
	return filepath.Join(home, ".inspecta")
}

// Validate checks the configuration and reports the first problem found
func (c Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return Errorf(KindInvalidConfiguration, "config", "chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return Errorf(KindInvalidConfiguration, "config", "chunking.overlap must be in [0, %d), got %d", c.Chunking.Size, c.Chunking.Overlap)
	}
	if c.Retrieval.TopK < 1 {
		return Errorf(KindInvalidConfiguration, "config", "retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return Errorf(KindInvalidConfiguration, "config", "retrieval.threshold must be in [0, 1], got %g", c.Retrieval.Threshold)
	}
	if err := oneOf("store.backend", c.Store.Backend, "sqlite", "memory", "postgres"); err != nil {
		return err
	}
	if c.Store.Backend == "postgres" && c.Store.DSN == "" {
		return Errorf(KindInvalidConfiguration, "config", "store.dsn is required for the postgres backend")
	}
	if err := oneOf("embedding.provider", c.Embedding.Provider, "openai", "ollama", "hash"); err != nil {
		return err
	}
	if err := oneOf("vision.provider", c.Vision.Provider, "openai", "anthropic", "claude", "ollama"); err != nil {
		return err
	}
	if c.Integrate.Concurrency < 1 {
		return Errorf(KindInvalidConfiguration, "config", "integrate.concurrency must be at least 1, got %d", c.Integrate.Concurrency)
	}
	return nil
}

// Seconds converts a seconds field to a duration, using fallback for zero or negative values
func Seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func oneOf(field, value string, allowed ...string) error {
	v := strings.ToLower(value)
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return NewError(KindInvalidConfiguration, "config",
		fmt.Errorf("unknown %s %q (supported: %s)", field, value, strings.Join(allowed, ", ")))
}
