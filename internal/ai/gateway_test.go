package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"postpilot/internal/logging"
)

type fakeProvider struct {
	name  string
	mu    sync.Mutex
	calls int
	reply func(call int) (string, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GenerateText(_ context.Context, _ TextRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.reply(call)
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var longText = strings.Repeat("Fresh bread every morning. ", 4)

func failing(name string) *fakeProvider {
	return &fakeProvider{name: name, reply: func(int) (string, error) {
		return "", errors.New(name + " unavailable")
	}}
}

func succeeding(name string) *fakeProvider {
	return &fakeProvider{name: name, reply: func(int) (string, error) {
		return "  " + longText + "  ", nil
	}}
}

func newTestGateway(providers ...TextProvider) *Gateway {
	return NewGateway(providers, GatewayOptions{Logger: logging.Discard()})
}

func TestGatewayCachesWorkingProvider(t *testing.T) {
	a := failing("a")
	b := succeeding("b")
	g := newTestGateway(a, b)

	text, err := g.GenerateText(context.Background(), "prompt", "twitter", "ctx")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if text != strings.TrimSpace(longText) {
		t.Fatalf("expected trimmed text, got %q", text)
	}
	if a.Calls() != 1 || b.Calls() != 1 {
		t.Fatalf("unexpected calls a=%d b=%d", a.Calls(), b.Calls())
	}
	if got := g.Health().WorkingProvider; got != "b" {
		t.Fatalf("expected working provider b, got %q", got)
	}

	if _, err := g.GenerateText(context.Background(), "prompt 2", "twitter", "ctx"); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if a.Calls() != 1 {
		t.Fatalf("expected a to be skipped on second call, got %d calls", a.Calls())
	}
	if b.Calls() != 2 {
		t.Fatalf("expected b to be called twice, got %d", b.Calls())
	}
}

func TestGatewayRejectsShortResponses(t *testing.T) {
	short := &fakeProvider{name: "short", reply: func(int) (string, error) {
		return "too short", nil
	}}
	empty := &fakeProvider{name: "empty", reply: func(int) (string, error) {
		return "   ", nil
	}}
	g := newTestGateway(short, empty)

	_, err := g.GenerateText(context.Background(), "p", "", "")
	if !errors.Is(err, ErrProvidersExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %T", err)
	}
	if len(exhausted.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(exhausted.Failures))
	}
	if !errors.Is(exhausted.Failures[0].Err, ErrShortResponse) {
		t.Fatalf("expected short response failure, got %v", exhausted.Failures[0].Err)
	}
	if !errors.Is(exhausted.Failures[1].Err, ErrEmptyResponse) {
		t.Fatalf("expected empty response failure, got %v", exhausted.Failures[1].Err)
	}
	if !strings.Contains(err.Error(), "short") || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected every provider named in %q", err.Error())
	}
}

func TestGatewayMinimumLengthBoundary(t *testing.T) {
	exact := strings.Repeat("é", MinTextLength)
	p := &fakeProvider{name: "p", reply: func(int) (string, error) { return exact, nil }}
	g := newTestGateway(p)
	text, err := g.GenerateText(context.Background(), "p", "", "")
	if err != nil {
		t.Fatalf("expected %d characters to pass: %v", MinTextLength, err)
	}
	if text != exact {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestGatewayFallsBackWhenCachedProviderFails(t *testing.T) {
	a := &fakeProvider{name: "a", reply: func(call int) (string, error) {
		if call == 1 {
			return longText, nil
		}
		return "", errors.New("quota exceeded")
	}}
	b := succeeding("b")
	g := newTestGateway(a, b)

	if _, err := g.GenerateText(context.Background(), "p", "", ""); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if got := g.Health().WorkingProvider; got != "a" {
		t.Fatalf("expected a cached, got %q", got)
	}

	if _, err := g.GenerateText(context.Background(), "p", "", ""); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if a.Calls() != 2 {
		t.Fatalf("expected cached provider tried once more, got %d calls", a.Calls())
	}
	if b.Calls() != 1 {
		t.Fatalf("expected fallback to b, got %d calls", b.Calls())
	}
	if got := g.Health().WorkingProvider; got != "b" {
		t.Fatalf("expected b cached after fallback, got %q", got)
	}
}

func TestGatewayCooldownExpires(t *testing.T) {
	health := NewHealthState(DefaultCooldown)
	now := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	health.now = func() time.Time { return now }

	a := &fakeProvider{name: "a", reply: func(call int) (string, error) {
		if call == 1 {
			return "", errors.New("down")
		}
		return longText, nil
	}}
	b := succeeding("b")
	g := NewGateway([]TextProvider{a, b}, GatewayOptions{Health: health, Logger: logging.Discard()})

	if _, err := g.GenerateText(context.Background(), "p", "", ""); err != nil {
		t.Fatalf("first call: %v", err)
	}
	now = now.Add(DefaultCooldown)
	if _, ok := health.Working(); ok {
		t.Fatalf("expected working provider to expire after cooldown")
	}
	if _, err := g.GenerateText(context.Background(), "p", "", ""); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if a.Calls() != 2 {
		t.Fatalf("expected primary retried after cooldown, got %d calls", a.Calls())
	}
	if got := g.Health().WorkingProvider; got != "a" {
		t.Fatalf("expected a cached again, got %q", got)
	}
}

func TestGatewayResetClearsState(t *testing.T) {
	g := newTestGateway(failing("a"), succeeding("b"))
	if _, err := g.GenerateText(context.Background(), "p", "", ""); err != nil {
		t.Fatalf("generate: %v", err)
	}
	g.Reset()
	snap := g.Health()
	if snap.WorkingProvider != "" || snap.LastFailureAt != nil {
		t.Fatalf("expected empty snapshot after reset, got %+v", snap)
	}
}

func TestGatewayNoProviders(t *testing.T) {
	g := newTestGateway()
	_, err := g.GenerateText(context.Background(), "p", "", "")
	if !errors.Is(err, ErrProvidersExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
}

func TestGatewayResponseCache(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	p := &fakeProvider{name: "p", reply: func(int) (string, error) {
		calls.Add(1)
		<-release
		return longText, nil
	}}
	g := NewGateway([]TextProvider{p}, GatewayOptions{CacheTTL: time.Minute, Logger: logging.Discard()})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.GenerateText(context.Background(), "same", "twitter", "ctx"); err != nil {
				t.Errorf("generate: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if _, err := g.GenerateText(context.Background(), "same", "twitter", "ctx"); err != nil {
		t.Fatalf("cached generate: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one provider call, got %d", got)
	}

	if _, err := g.GenerateText(context.Background(), "different", "twitter", "ctx"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected a miss for a new prompt, got %d calls", got)
	}
}

func TestGatewayCacheSkipsFailures(t *testing.T) {
	p := &fakeProvider{name: "p", reply: func(call int) (string, error) {
		if call == 1 {
			return "", errors.New("boom")
		}
		return longText, nil
	}}
	g := NewGateway([]TextProvider{p}, GatewayOptions{CacheTTL: time.Minute, Logger: logging.Discard()})
	if _, err := g.GenerateText(context.Background(), "p", "", ""); err == nil {
		t.Fatalf("expected first call to fail")
	}
	if _, err := g.GenerateText(context.Background(), "p", "", ""); err != nil {
		t.Fatalf("expected failure not to be cached: %v", err)
	}
}

func TestResponseCacheEviction(t *testing.T) {
	c := newResponseCache(time.Minute, 2)
	load := func(v string) func() (string, error) {
		return func() (string, error) { return v, nil }
	}
	for _, key := range []string{"a", "b", "c"} {
		if _, _, err := c.get(key, load(key)); err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
	}
	if n := c.len(); n != 2 {
		t.Fatalf("expected cache bounded at 2, got %d", n)
	}
	if _, hit, _ := c.get("c", load("x")); !hit {
		t.Fatalf("expected most recent entry to survive")
	}
}

type fakeImageProvider struct {
	name string
	url  string
	err  error
}

func (f *fakeImageProvider) Name() string { return f.name }

func (f *fakeImageProvider) GenerateImage(context.Context, string, string) (string, error) {
	return f.url, f.err
}

func TestImageGatewayFallback(t *testing.T) {
	g := NewImageGateway([]ImageProvider{
		&fakeImageProvider{name: "dalle", err: errors.New("rate limited")},
		&fakeImageProvider{name: "backup", url: "https://img.example/1.png"},
	}, nil, nil, logging.Discard())

	url, err := g.GenerateImage(context.Background(), "croissant", "bright")
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if url != "https://img.example/1.png" {
		t.Fatalf("unexpected url %q", url)
	}

	empty := NewImageGateway([]ImageProvider{&fakeImageProvider{name: "blank"}}, nil, nil, logging.Discard())
	if _, err := empty.GenerateImage(context.Background(), "x", ""); !errors.Is(err, ErrProvidersExhausted) {
		t.Fatalf("expected exhausted error for empty url, got %v", err)
	}
}

func TestRankProvidersFollowsOrder(t *testing.T) {
	openai, anthropic, ollama := succeeding("openai"), succeeding("anthropic"), succeeding("ollama")
	cases := []struct {
		order []string
		want  string
	}{
		{[]string{"openai", "anthropic", "ollama"}, "openai,anthropic,ollama"},
		{[]string{"ollama", "openai"}, "ollama,openai"},
		{[]string{"anthropic", "anthropic", "mistral"}, "anthropic"},
		{nil, ""},
	}
	for _, tc := range cases {
		var names []string
		for _, p := range RankProviders(tc.order, openai, anthropic, nil, ollama) {
			names = append(names, p.Name())
		}
		if got := strings.Join(names, ","); got != tc.want {
			t.Errorf("order %v: got %q, want %q", tc.order, got, tc.want)
		}
	}
}
