package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/util"
)

// OpenAIProvider implements Provider with the Chat Completions API
type OpenAIProvider struct {
	client   *openai.Client
	config   Config
	endpoint string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, model.Errorf(model.KindInvalidConfiguration, "openai", "OpenAI API key is required (vision.api_key or OPENAI_API_KEY)")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	httpClient := util.NewHTTPClient(config.HTTPProxy, config.HTTPSProxy, config.NoProxy)
	httpClient.Timeout = config.Timeout
	clientConfig.HTTPClient = httpClient

	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}

	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(clientConfig),
		config:   config,
		endpoint: clientConfig.BaseURL,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Endpoint returns the API base URL
func (p *OpenAIProvider) Endpoint() string {
	return p.endpoint
}

// Ping lists models, the cheapest authenticated call
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return p.classify(err)
	}
	return nil
}

// Analyze sends the image as a data URI and asks for a JSON object reply
func (p *OpenAIProvider) Analyze(ctx context.Context, req Request) (*Response, error) {
	dataURI := fmt.Sprintf("data:%s;base64,%s", req.MIME, base64.StdEncoding.EncodeToString(req.Image))

	chatReq := openai.ChatCompletionRequest{
		Model: p.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.System,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURI,
						Detail: openai.ImageURLDetailHigh,
					}},
				},
			},
		},
		MaxTokens:   maxTokens(req.MaxTokens, p.config.MaxTokens),
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, malformed("openai", "no choices in response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, malformed("openai", "empty response (finish reason %q)", resp.Choices[0].FinishReason)
	}

	return &Response{
		Text:       text,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

func (p *OpenAIProvider) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError("openai", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError("openai", reqErr.HTTPStatusCode, reqErr.Error())
	}
	return transportError("openai", err)
}
