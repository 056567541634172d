package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/ppiankov/inspecta/internal/model"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{model.NewError(model.KindInvalidConfiguration, "config", nil), 2},
		{fmt.Errorf("analyze: %w", model.NewError(model.KindUpstreamUnavailable, "openai", nil)), 3},
		{context.DeadlineExceeded, 3},
		{model.NewError(model.KindMalformedModelResponse, "vision", nil), 4},
		{model.ErrCollectionEmpty, 5},
		{model.NewError(model.KindEmbeddingUnavailable, "embed", nil), 1},
		{errors.New("disk full"), 1},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	v := viper.New()
	if err := configure(v, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for an explicit config file that does not exist")
	}

	v = viper.New()
	if err := setDefaults(v, model.DefaultConfig()); err != nil {
		t.Fatalf("setDefaults failed: %v", err)
	}
	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Retrieval.Threshold != 0.30 || cfg.Chunking.Size != 1000 || cfg.Store.Collection != model.DefaultCollection {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "retrieval:\n  threshold: 0.4\n  top_k: 7\nstore:\n  backend: memory\n"
	if err := os.WriteFile(file, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("INSPECTA_RETRIEVAL_THRESHOLD", "0.55")
	t.Setenv("INSPECTA_VISION_API_KEY", "sk-from-env")

	v := viper.New()
	if err := configure(v, file); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.Retrieval.Threshold != 0.55 {
		t.Errorf("environment should override the file, got threshold %v", cfg.Retrieval.Threshold)
	}
	if cfg.Retrieval.TopK != 7 || cfg.Store.Backend != "memory" {
		t.Errorf("file values not applied: %+v", cfg.Retrieval)
	}
	if cfg.Vision.APIKey != "sk-from-env" {
		t.Errorf("expected vision api key from environment, got %q", cfg.Vision.APIKey)
	}
	if cfg.Chunking.Overlap != 200 {
		t.Errorf("defaults should fill unset keys, got overlap %d", cfg.Chunking.Overlap)
	}

	v.Set("retrieval.threshold", 0.9)
	cfg, _ = loadConfig(v)
	if cfg.Retrieval.Threshold != 0.9 {
		t.Errorf("an explicit override should win, got %v", cfg.Retrieval.Threshold)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv("INSPECTA_CHUNKING_OVERLAP", "1000")

	v := viper.New()
	if err := setDefaults(v, model.DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	v.SetEnvPrefix("INSPECTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_, err := loadConfig(v)
	if model.KindOf(err) != model.KindInvalidConfiguration {
		t.Errorf("expected InvalidConfiguration, got %v", err)
	}
}

func TestParseType(t *testing.T) {
	if it, err := parseType("industrial"); err != nil || it != model.InstallationIndustrial {
		t.Errorf("parseType(industrial) = %v, %v", it, err)
	}
	if _, err := parseType("naval"); model.KindOf(err) != model.KindInvalidConfiguration {
		t.Errorf("expected InvalidConfiguration, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"/fotos/tablero principal.jpg": "tablero-principal",
		"a:b*c?.png":                   "a_b_c_",
		".jpg":                         "imagen",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}

	seen := map[string]int{}
	if a, b := uniqueName(seen, "x"), uniqueName(seen, "x"); a != "x" || b != "x-2" {
		t.Errorf("uniqueName gave %q and %q", a, b)
	}
}
