// Package vision asks a multimodal model to inspect an electrical installation
// photograph and parses its structured verdict.
package vision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/inspecta/internal/model"
)

// Provider sends one image and prompt to a vision model
type Provider interface {
	// Name returns the provider name
	Name() string

	// Endpoint identifies the remote host, used as the rate limiting key
	Endpoint() string

	// Analyze returns the model's raw text reply
	Analyze(ctx context.Context, req Request) (*Response, error)

	// Ping checks that the provider is configured and reachable
	Ping(ctx context.Context) error
}

// Request is one image analysis call
type Request struct {
	Image     []byte
	MIME      string
	Prompt    string
	System    string
	MaxTokens int
}

// Response is the unparsed model reply
type Response struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds vision provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout per HTTP request
	Timeout time.Duration

	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// ConfigFromModel converts the application config to a provider config. A
// missing API key falls back to the provider's conventional environment variable.
func ConfigFromModel(v model.VisionConfig, h model.HTTPConfig) Config {
	cfg := Config{
		Provider:   strings.ToLower(v.Provider),
		Model:      v.Model,
		APIKey:     v.APIKey,
		BaseURL:    v.BaseURL,
		Timeout:    model.Seconds(v.Timeout, DefaultTimeout),
		MaxTokens:  v.MaxTokens,
		HTTPProxy:  h.HTTPProxy,
		HTTPSProxy: h.HTTPSProxy,
		NoProxy:    h.NoProxy,
	}
	if cfg.APIKey == "" {
		switch cfg.Provider {
		case "openai":
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	return cfg
}

// NewProvider creates the provider named by config
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)
	case "anthropic", "claude":
		return NewAnthropicProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	default:
		return nil, model.Errorf(model.KindInvalidConfiguration, "vision",
			"unknown vision provider: %q (supported: openai, anthropic, ollama)", config.Provider)
	}
}

func maxTokens(req, cfg int) int {
	if req > 0 {
		return req
	}
	if cfg > 0 {
		return cfg
	}
	return 2000
}

// statusError classifies a non-200 reply. Auth, throttling, timeouts and server
// errors are upstream outages; any other client error means the request or
// reply was unusable.
func statusError(provider string, code int, msg string) error {
	err := fmt.Errorf("API error (%d): %s", code, msg)
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden,
		code == http.StatusRequestTimeout, code == http.StatusTooManyRequests,
		code >= 500:
		return model.NewError(model.KindUpstreamUnavailable, provider, err)
	default:
		return model.NewError(model.KindMalformedModelResponse, provider, err)
	}
}

// transportError marks a failed HTTP exchange (refused, reset, timed out) as an outage
func transportError(provider string, err error) error {
	var ae *model.AnalysisError
	if errors.As(err, &ae) {
		return err
	}
	return model.NewError(model.KindUpstreamUnavailable, provider, err)
}

func malformed(provider, format string, args ...interface{}) error {
	return model.Errorf(model.KindMalformedModelResponse, provider, format, args...)
}
