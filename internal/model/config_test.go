package model

import (
	"errors"
	"testing"
)

func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals size", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }},
		{"zero size", func(c *Config) { c.Chunking.Size = 0 }},
		{"threshold above one", func(c *Config) { c.Retrieval.Threshold = 1.5 }},
		{"zero top k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "chroma" }},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = "postgres" }},
		{"unknown embedder", func(c *Config) { c.Embedding.Provider = "gemini" }},
		{"unknown vision provider", func(c *Config) { c.Vision.Provider = "gemini" }},
		{"zero concurrency", func(c *Config) { c.Integrate.Concurrency = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("expected InvalidConfiguration, got %v", err)
			}
		})
	}
}
