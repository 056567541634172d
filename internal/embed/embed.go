// Package embed turns text into fixed-length vectors.
package embed

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/inspecta/internal/cache"
	"github.com/ppiankov/inspecta/internal/model"
)

// Embedder converts text to vectors. Implementations must be deterministic for a
// fixed model and must return batch results in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

// New builds the embedder selected by cfg, wrapped in the embedding cache
func New(cfg model.EmbeddingConfig, httpCfg model.HTTPConfig, c cache.Cache, log logrus.FieldLogger) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		e, err = NewOpenAI(cfg, httpCfg)
	case "ollama":
		e, err = NewOllama(cfg, httpCfg)
	case "hash", "":
		e = NewHash(cfg.Dimensions)
	default:
		return nil, model.Errorf(model.KindInvalidConfiguration, "embed", "unknown embedding provider: %s (supported: openai, ollama, hash)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if c == nil {
		return e, nil
	}
	return NewCached(e, c, log), nil
}

func unavailable(op string, err error) error {
	return model.NewError(model.KindEmbeddingUnavailable, op, err)
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero
// or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Normalize scales v to unit length in place
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}

func checkBatch(op string, got [][]float32, want int) error {
	if len(got) != want {
		return unavailable(op, fmt.Errorf("expected %d embeddings, got %d", want, len(got)))
	}
	for i, v := range got {
		if len(v) == 0 {
			return unavailable(op, fmt.Errorf("empty embedding at index %d", i))
		}
	}
	return nil
}
