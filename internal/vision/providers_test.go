package vision

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/inspecta/internal/model"
)

var pngImage = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func testRequest() Request {
	return Request{Image: pngImage, MIME: "image/png", Prompt: "Analiza", System: SystemPrompt, MaxTokens: 100}
}

func TestOpenAIProvider_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		for _, want := range []string{`"image_url"`, "data:image/png;base64,", `"json_object"`} {
			if !strings.Contains(string(body), want) {
				t.Errorf("request body missing %s", want)
			}
		}

		resp := openai.ChatCompletionResponse{
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: validReply}, FinishReason: "stop"},
			},
			Usage: openai.Usage{TotalTokens: 321},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.Analyze(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if resp.Text != validReply || resp.Model != "gpt-4o-mini" || resp.TokensUsed != 321 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestOpenAIProvider_ErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		want   model.ErrorKind
	}{
		{http.StatusTooManyRequests, model.KindUpstreamUnavailable},
		{http.StatusUnauthorized, model.KindUpstreamUnavailable},
		{http.StatusInternalServerError, model.KindUpstreamUnavailable},
		{http.StatusBadRequest, model.KindMalformedModelResponse},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error": {"message": "nope", "type": "test_error"}}`))
		}))

		provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})
		if err != nil {
			t.Fatalf("Failed to create provider: %v", err)
		}
		_, err = provider.Analyze(context.Background(), testRequest())
		if got := model.KindOf(err); got != tt.want {
			t.Errorf("status %d: expected %s, got %s (%v)", tt.status, tt.want, got, err)
		}
		server.Close()
	}
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{Model: "gpt-4o-mini"})
	}))
	defer server.Close()

	provider, _ := NewOpenAIProvider(Config{APIKey: "k", BaseURL: server.URL, Timeout: 5 * time.Second})
	_, err := provider.Analyze(context.Background(), testRequest())
	if model.KindOf(err) != model.KindMalformedModelResponse {
		t.Errorf("expected MalformedModelResponse, got %v", err)
	}
}

func TestOpenAIProvider_MissingKey(t *testing.T) {
	_, err := NewOpenAIProvider(Config{})
	if model.KindOf(err) != model.KindInvalidConfiguration {
		t.Errorf("expected InvalidConfiguration, got %v", err)
	}
}

func TestAnthropicProvider_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key test-key, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("unexpected anthropic-version %s", r.Header.Get("anthropic-version"))
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		content := req.Messages[0].Content
		if len(content) != 2 || content[0].Type != "image" || content[0].Source.MediaType != "image/png" {
			t.Errorf("expected image block first, got %+v", content)
		}
		if req.System != SystemPrompt {
			t.Errorf("system prompt not forwarded")
		}

		resp := map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": validReply}},
			"model":   "claude-test",
			"usage":   map[string]int{"input_tokens": 10, "output_tokens": 20},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.Analyze(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if resp.Text != validReply || resp.TokensUsed != 30 || resp.Model != "claude-test" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestAnthropicProvider_Overloaded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "overloaded_error", "message": "Overloaded"}}`))
	}))
	defer server.Close()

	provider, _ := NewAnthropicProvider(Config{APIKey: "k", BaseURL: server.URL, Timeout: 5 * time.Second})
	_, err := provider.Analyze(context.Background(), testRequest())
	if model.KindOf(err) != model.KindUpstreamUnavailable {
		t.Errorf("expected UpstreamUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "overloaded_error") {
		t.Errorf("error should carry the API message, got %v", err)
	}
}

func TestOllamaProvider_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Format != "json" || len(req.Images) != 1 || req.Stream {
			t.Errorf("unexpected request: format=%q images=%d stream=%v", req.Format, len(req.Images), req.Stream)
		}
		_ = json.NewEncoder(w).Encode(ollamaResponse{Model: "llava", Response: validReply, Done: true, EvalCount: 7})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{Model: "llava", BaseURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.Analyze(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if resp.Text != validReply || resp.Model != "llava" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestOllamaProvider_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	provider, _ := NewOllamaProvider(Config{Model: "llava", BaseURL: url, Timeout: time.Second})
	_, err := provider.Analyze(context.Background(), testRequest())
	if model.KindOf(err) != model.KindUpstreamUnavailable {
		t.Errorf("expected UpstreamUnavailable, got %v", err)
	}
	if provider.Ping(context.Background()) == nil {
		t.Error("expected ping to fail")
	}
}

func TestOllamaProvider_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"models": []}`))
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{Model: "llava", BaseURL: server.URL})
	if err := provider.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		cfg  Config
		name string
	}{
		{Config{Provider: "openai", APIKey: "k"}, "openai"},
		{Config{Provider: "Anthropic", APIKey: "k"}, "anthropic"},
		{Config{Provider: "claude", APIKey: "k"}, "anthropic"},
		{Config{Provider: "ollama", Model: "llava"}, "ollama"},
	}
	for _, tt := range tests {
		p, err := NewProvider(tt.cfg)
		if err != nil {
			t.Fatalf("NewProvider(%s) failed: %v", tt.cfg.Provider, err)
		}
		if p.Name() != tt.name {
			t.Errorf("expected %s, got %s", tt.name, p.Name())
		}
	}

	_, err := NewProvider(Config{Provider: "gemini"})
	if model.KindOf(err) != model.KindInvalidConfiguration {
		t.Errorf("expected InvalidConfiguration, got %v", err)
	}
}

func TestConfigFromModel_EnvKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	cfg := ConfigFromModel(model.VisionConfig{Provider: "anthropic", Timeout: 60}, model.HTTPConfig{})
	if cfg.APIKey != "from-env" {
		t.Errorf("expected key from environment, got %q", cfg.APIKey)
	}
	if cfg.Timeout != 60*time.Second {
		t.Errorf("expected 60s timeout, got %v", cfg.Timeout)
	}

	cfg = ConfigFromModel(model.VisionConfig{Provider: "anthropic", APIKey: "explicit"}, model.HTTPConfig{})
	if cfg.APIKey != "explicit" {
		t.Errorf("explicit key should win, got %q", cfg.APIKey)
	}
}
