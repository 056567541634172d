package embed

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/inspecta/internal/cache"
	"github.com/ppiankov/inspecta/internal/logger"
)

// Cached memoizes vectors per (model, text) in a cache.Cache
type Cached struct {
	inner Embedder
	cache cache.Cache
	log   logrus.FieldLogger
}

// NewCached wraps inner with c
func NewCached(inner Embedder, c cache.Cache, log logrus.FieldLogger) *Cached {
	return &Cached{inner: inner, cache: c, log: logger.OrDiscard(log)}
}

// Embed returns the cached vector or computes and stores it
func (e *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch only sends cache misses to the wrapped embedder
func (e *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, t := range texts {
		var v []float32
		if cache.GetJSON(e.cache, e.key(t), &v) && len(v) > 0 {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = vecs[j]
		if err := cache.SetJSON(e.cache, e.key(missTexts[j]), vecs[j], 0); err != nil {
			e.log.WithError(err).Debug("embedding cache write failed")
		}
	}
	return out, nil
}

// Dimensions returns the wrapped embedder's vector size
func (e *Cached) Dimensions() int {
	return e.inner.Dimensions()
}

// ModelName returns the wrapped embedder's model
func (e *Cached) ModelName() string {
	return e.inner.ModelName()
}

func (e *Cached) key(text string) string {
	return cache.Key(cache.NamespaceEmbed, e.inner.ModelName(), text)
}
