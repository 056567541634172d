package vision

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/inspecta/internal/logger"
	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/util"
	"github.com/ppiankov/inspecta/internal/worker"
)

// DefaultTimeout bounds one vision call
const DefaultTimeout = 90 * time.Second

const defaultBackoff = 2 * time.Second

var supportedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Client validates input, rate-limits, calls the provider with retries and
// parses the reply
type Client struct {
	provider   Provider
	limiter    *worker.Limiter
	timeout    time.Duration
	maxRetries int
	maxTokens  int
	backoff    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	log        logrus.FieldLogger
}

// Option configures a Client
type Option func(*Client)

// WithLimiter shares a rate limiter across clients
func WithLimiter(l *worker.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithTimeout sets the per-attempt timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetries sets how many times an upstream failure is retried
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithMaxTokens caps the reply length
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithBackoff sets the first retry delay; later delays double
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithSleep replaces the delay function between retries
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = logger.OrDiscard(log) }
}

// NewClient wraps a provider
func NewClient(p Provider, opts ...Option) *Client {
	c := &Client{
		provider:   p,
		timeout:    DefaultTimeout,
		maxRetries: 2,
		backoff:    defaultBackoff,
		sleep:      sleepCtx,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds the configured provider with its limiter and retry policy
func NewFromConfig(v model.VisionConfig, h model.HTTPConfig, log logrus.FieldLogger) (*Client, error) {
	cfg := ConfigFromModel(v, h)
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(p,
		WithTimeout(cfg.Timeout),
		WithRetries(v.MaxRetries),
		WithMaxTokens(v.MaxTokens),
		WithLimiter(worker.NewLimiter(v.RatePerSec, 1)),
		WithLogger(log),
	), nil
}

// Provider returns the underlying provider
func (c *Client) Provider() Provider {
	return c.provider
}

// Ping checks provider availability
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.provider.Ping(ctx)
}

// AnalyzeImage asks the model to inspect image and returns its validated
// verdict. Upstream failures are retried with exponential backoff; malformed
// replies are not.
func (c *Client) AnalyzeImage(ctx context.Context, image []byte, it model.InstallationType) (*RawAnalysis, error) {
	prompt, err := BuildPrompt(it)
	if err != nil {
		return nil, err
	}
	mime, err := DetectMIME(image)
	if err != nil {
		return nil, err
	}

	req := Request{
		Image:     image,
		MIME:      mime,
		Prompt:    prompt,
		System:    SystemPrompt,
		MaxTokens: c.maxTokens,
	}
	log := c.log.WithFields(logrus.Fields{"provider": c.provider.Name(), "type": it})

	delay := c.backoff
	for attempt := 0; ; attempt++ {
		raw, err := c.attempt(ctx, req)
		if err == nil {
			log.WithField("findings", len(raw.NonConformities)).Info("vision analysis complete")
			return raw, nil
		}
		if !model.IsRetryable(err) || attempt >= c.maxRetries || ctx.Err() != nil {
			log.WithError(err).Warn("vision analysis failed")
			return nil, err
		}

		log.WithError(err).WithField("attempt", attempt+1).Warn("vision call failed, retrying")
		if err := c.sleep(ctx, delay); err != nil {
			return nil, model.NewError(model.KindUpstreamUnavailable, "vision", err)
		}
		delay *= 2
	}
}

func (c *Client) attempt(ctx context.Context, req Request) (*RawAnalysis, error) {
	if err := c.limiter.Wait(ctx, c.provider.Endpoint()); err != nil {
		return nil, model.NewError(model.KindUpstreamUnavailable, "vision rate limit", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.provider.Analyze(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.NewError(model.KindUpstreamUnavailable, c.provider.Name(), ctx.Err())
		}
		return nil, err
	}

	raw, err := ParseResponse(resp.Text)
	if err != nil {
		c.log.WithField("reply", util.Truncate(resp.Text, 500)).Debug("unparseable vision reply")
		return nil, err
	}
	raw.Model = resp.Model
	return raw, nil
}

// DetectMIME sniffs the image type and rejects anything the providers cannot read
func DetectMIME(image []byte) (string, error) {
	if len(image) == 0 {
		return "", model.Errorf(model.KindInvalidConfiguration, "vision", "image is empty")
	}
	mime := http.DetectContentType(image)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !supportedMIME[mime] {
		return "", model.Errorf(model.KindInvalidConfiguration, "vision",
			"unsupported image type %s (expected jpeg, png, webp or gif)", mime)
	}
	return mime, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

