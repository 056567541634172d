package embed

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/util"
)

// OpenAI embeds text with the OpenAI embeddings API or a compatible server
type OpenAI struct {
	client  *openai.Client
	model   string
	dims    atomic.Int64
	timeout time.Duration
}

// NewOpenAI creates an OpenAI embedder
func NewOpenAI(cfg model.EmbeddingConfig, httpCfg model.HTTPConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, model.Errorf(model.KindInvalidConfiguration, "embed", "OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = util.NewHTTPClient(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy)

	name := cfg.Model
	if name == "" {
		name = string(openai.SmallEmbedding3)
	}

	e := &OpenAI{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   name,
		timeout: model.Seconds(cfg.Timeout, 30*time.Second),
	}
	e.dims.Store(int64(openAIDimensions(name)))
	return e, nil
}

// Embed embeds a single text
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, reordering the reply by index
func (e *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, unavailable("openai embeddings", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, unavailable("openai embeddings", fmt.Errorf("embedding index %d out of range", d.Index))
		}
		out[d.Index] = d.Embedding
	}
	if err := checkBatch("openai embeddings", out, len(texts)); err != nil {
		return nil, err
	}
	e.dims.CompareAndSwap(0, int64(len(out[0])))
	return out, nil
}

// Dimensions returns the vector size, or 0 before the first call for unknown models
func (e *OpenAI) Dimensions() int {
	return int(e.dims.Load())
}

// ModelName returns the embedding model identifier
func (e *OpenAI) ModelName() string {
	return e.model
}

func openAIDimensions(name string) int {
	switch name {
	case string(openai.SmallEmbedding3), string(openai.AdaEmbeddingV2):
		return 1536
	case string(openai.LargeEmbedding3):
		return 3072
	}
	return 0
}
