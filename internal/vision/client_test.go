package vision

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/worker"
)

type fakeProvider struct {
	calls   int32
	replies []func(ctx context.Context) (*Response, error)
}

func (f *fakeProvider) Name() string                   { return "fake" }
func (f *fakeProvider) Endpoint() string               { return "http://fake.local" }
func (f *fakeProvider) Ping(ctx context.Context) error { return nil }

func (f *fakeProvider) Analyze(ctx context.Context, req Request) (*Response, error) {
	n := int(atomic.AddInt32(&f.calls, 1)) - 1
	if n >= len(f.replies) {
		n = len(f.replies) - 1
	}
	return f.replies[n](ctx)
}

func reply(text string) func(context.Context) (*Response, error) {
	return func(context.Context) (*Response, error) {
		return &Response{Text: text, Model: "fake-vision"}, nil
	}
}

func fail(kind model.ErrorKind) func(context.Context) (*Response, error) {
	return func(context.Context) (*Response, error) {
		return nil, model.NewError(kind, "fake", nil)
	}
}

func recordSleeps(delays *[]time.Duration) Option {
	return WithSleep(func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	})
}

func TestAnalyzeImage_Success(t *testing.T) {
	p := &fakeProvider{replies: []func(context.Context) (*Response, error){reply(validReply)}}
	c := NewClient(p)

	raw, err := c.AnalyzeImage(context.Background(), pngImage, model.InstallationResidential)
	if err != nil {
		t.Fatalf("AnalyzeImage failed: %v", err)
	}
	if raw.Model != "fake-vision" {
		t.Errorf("expected model to be recorded, got %q", raw.Model)
	}
	if len(raw.NonConformities) != 1 {
		t.Errorf("expected 1 finding, got %d", len(raw.NonConformities))
	}
}

func TestAnalyzeImage_RetriesUpstream(t *testing.T) {
	p := &fakeProvider{replies: []func(context.Context) (*Response, error){
		fail(model.KindUpstreamUnavailable),
		fail(model.KindUpstreamUnavailable),
		reply(validReply),
	}}
	var delays []time.Duration
	c := NewClient(p, WithRetries(2), WithBackoff(time.Second), recordSleeps(&delays))

	if _, err := c.AnalyzeImage(context.Background(), pngImage, model.InstallationIndustrial); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", p.calls)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Errorf("expected doubling backoff, got %v", delays)
	}
}

func TestAnalyzeImage_RetriesExhausted(t *testing.T) {
	p := &fakeProvider{replies: []func(context.Context) (*Response, error){fail(model.KindUpstreamUnavailable)}}
	var delays []time.Duration
	c := NewClient(p, WithRetries(1), recordSleeps(&delays))

	_, err := c.AnalyzeImage(context.Background(), pngImage, model.InstallationCommercial)
	if !errors.Is(err, model.ErrUpstreamUnavailable) {
		t.Errorf("expected UpstreamUnavailable, got %v", err)
	}
	if p.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", p.calls)
	}
}

func TestAnalyzeImage_MalformedNotRetried(t *testing.T) {
	p := &fakeProvider{replies: []func(context.Context) (*Response, error){reply("todo bien, sin JSON")}}
	var delays []time.Duration
	c := NewClient(p, WithRetries(3), recordSleeps(&delays))

	_, err := c.AnalyzeImage(context.Background(), pngImage, model.InstallationResidential)
	if model.KindOf(err) != model.KindMalformedModelResponse {
		t.Errorf("expected MalformedModelResponse, got %v", err)
	}
	if p.calls != 1 || len(delays) != 0 {
		t.Errorf("malformed replies must not be retried: calls=%d sleeps=%d", p.calls, len(delays))
	}
}

func TestAnalyzeImage_Timeout(t *testing.T) {
	p := &fakeProvider{replies: []func(context.Context) (*Response, error){
		func(ctx context.Context) (*Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}
	c := NewClient(p, WithTimeout(20*time.Millisecond), WithRetries(0))

	_, err := c.AnalyzeImage(context.Background(), pngImage, model.InstallationResidential)
	if model.KindOf(err) != model.KindUpstreamUnavailable {
		t.Errorf("expected UpstreamUnavailable on timeout, got %v", err)
	}
}

func TestAnalyzeImage_InvalidInput(t *testing.T) {
	p := &fakeProvider{replies: []func(context.Context) (*Response, error){reply(validReply)}}
	c := NewClient(p)
	ctx := context.Background()

	if _, err := c.AnalyzeImage(ctx, pngImage, model.InstallationType("naval")); model.KindOf(err) != model.KindInvalidConfiguration {
		t.Errorf("unknown installation type: expected InvalidConfiguration, got %v", err)
	}
	if _, err := c.AnalyzeImage(ctx, []byte("plain text, not an image"), model.InstallationResidential); model.KindOf(err) != model.KindInvalidConfiguration {
		t.Errorf("text input: expected InvalidConfiguration, got %v", err)
	}
	if _, err := c.AnalyzeImage(ctx, nil, model.InstallationResidential); model.KindOf(err) != model.KindInvalidConfiguration {
		t.Errorf("empty input: expected InvalidConfiguration, got %v", err)
	}
	if p.calls != 0 {
		t.Errorf("provider must not be called for invalid input, got %d calls", p.calls)
	}
}

func TestAnalyzeImage_RateLimited(t *testing.T) {
	p := &fakeProvider{replies: []func(context.Context) (*Response, error){reply(validReply)}}
	c := NewClient(p, WithLimiter(worker.NewLimiter(0.001, 1)))

	if _, err := c.AnalyzeImage(context.Background(), pngImage, model.InstallationResidential); err != nil {
		t.Fatalf("first call should pass the limiter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.AnalyzeImage(ctx, pngImage, model.InstallationResidential)
	if model.KindOf(err) != model.KindUpstreamUnavailable {
		t.Errorf("expected UpstreamUnavailable while throttled, got %v", err)
	}
}

func TestDetectMIME(t *testing.T) {
	tests := map[string]struct {
		data []byte
		want string
	}{
		"png":  {pngImage, "image/png"},
		"jpeg": {[]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), "image/jpeg"},
		"gif":  {[]byte("GIF89a......"), "image/gif"},
	}
	for name, tt := range tests {
		got, err := DetectMIME(tt.data)
		if err != nil || got != tt.want {
			t.Errorf("%s: got %q, %v", name, got, err)
		}
	}

	if _, err := DetectMIME([]byte("%PDF-1.4")); model.KindOf(err) != model.KindInvalidConfiguration {
		t.Errorf("expected PDF to be rejected, got %v", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	for _, it := range []model.InstallationType{model.InstallationResidential, model.InstallationCommercial, model.InstallationIndustrial} {
		prompt, err := BuildPrompt(it)
		if err != nil {
			t.Fatalf("BuildPrompt(%s) failed: %v", it, err)
		}
		if len(prompt) == 0 {
			t.Errorf("empty prompt for %s", it)
		}
	}
	if _, err := BuildPrompt("naval"); model.KindOf(err) != model.KindInvalidConfiguration {
		t.Errorf("expected InvalidConfiguration, got %v", err)
	}
}
