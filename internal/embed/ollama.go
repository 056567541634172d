package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/util"
)

// Ollama embeds text with a local Ollama server
type Ollama struct {
	baseURL    string
	model      string
	dims       atomic.Int64
	httpClient *http.Client
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllama creates an Ollama embedder
func NewOllama(cfg model.EmbeddingConfig, httpCfg model.HTTPConfig) (*Ollama, error) {
	if cfg.Model == "" {
		return nil, model.Errorf(model.KindInvalidConfiguration, "embed", "ollama embedding model must be specified (e.g., nomic-embed-text)")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: model.Seconds(cfg.Timeout, 60*time.Second),
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy),
			},
		},
	}, nil
}

// Embed embeds a single text
func (e *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts with one /api/embed call
func (e *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, unavailable("ollama embeddings", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable("ollama embeddings", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr ollamaError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			return nil, unavailable("ollama embeddings", fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error))
		}
		return nil, unavailable("ollama embeddings", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody)))
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, unavailable("ollama embeddings", fmt.Errorf("unmarshal response: %w", err))
	}
	if err := checkBatch("ollama embeddings", parsed.Embeddings, len(texts)); err != nil {
		return nil, err
	}
	e.dims.CompareAndSwap(0, int64(len(parsed.Embeddings[0])))
	return parsed.Embeddings, nil
}

// Dimensions returns the vector size observed on the first call
func (e *Ollama) Dimensions() int {
	return int(e.dims.Load())
}

// ModelName returns the embedding model identifier
func (e *Ollama) ModelName() string {
	return e.model
}
