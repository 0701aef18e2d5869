package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"postpilot/internal/metrics"
)

// MinTextLength is the shortest trimmed response, in characters, that counts
// as a provider success.
const MinTextLength = 50

var (
	// ErrProvidersExhausted is matched by every *ExhaustedError.
	ErrProvidersExhausted = errors.New("all ai providers failed")
	// ErrShortResponse marks output below MinTextLength.
	ErrShortResponse = errors.New("response shorter than minimum length")
	// ErrEmptyResponse marks a provider that returned nothing usable.
	ErrEmptyResponse = errors.New("empty response")
)

// ProviderFailure is one provider's reason for failing a call.
type ProviderFailure struct {
	Provider string
	Err      error
}

// ExhaustedError aggregates the failure of every provider tried in one call.
type ExhaustedError struct {
	Kind     string
	Failures []ProviderFailure
}

func (e *ExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("%s: no %s providers configured", ErrProvidersExhausted, e.Kind)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Provider+": "+f.Err.Error())
	}
	return fmt.Sprintf("%s (%s): %s", ErrProvidersExhausted, e.Kind, strings.Join(parts, "; "))
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrProvidersExhausted
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// GatewayOptions configures a Gateway. Zero values are usable.
type GatewayOptions struct {
	Health          *HealthState
	CacheTTL        time.Duration
	CacheMaxEntries int
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

// Gateway is the single entry point for text generation. It tries the
// cached working provider first, then the rest in rank order.
type Gateway struct {
	providers []TextProvider
	health    *HealthState
	cache     *responseCache
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewGateway builds a gateway over providers in priority order.
func NewGateway(providers []TextProvider, opts GatewayOptions) *Gateway {
	health := opts.Health
	if health == nil {
		health = NewHealthState(DefaultCooldown)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		providers: providers,
		health:    health,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "ai_gateway"),
	}
	if opts.CacheTTL > 0 {
		g.cache = newResponseCache(opts.CacheTTL, opts.CacheMaxEntries)
	}
	return g
}

// GenerateText returns trimmed text of at least MinTextLength characters or
// an *ExhaustedError naming every provider's failure.
func (g *Gateway) GenerateText(ctx context.Context, prompt, platformHint, contextText string) (string, error) {
	req := TextRequest{Prompt: prompt, PlatformHint: platformHint, Context: contextText}
	if g.cache == nil {
		return g.generate(ctx, req)
	}
	text, hit, err := g.cache.get(cacheKey(req), func() (string, error) {
		return g.generate(ctx, req)
	})
	if hit {
		g.metrics.CacheHit()
	} else {
		g.metrics.CacheMiss()
	}
	return text, err
}

func (g *Gateway) generate(ctx context.Context, req TextRequest) (string, error) {
	exhausted := &ExhaustedError{Kind: "text"}
	tried := ""

	if name, ok := g.health.Working(); ok {
		if p := g.lookup(name); p != nil {
			text, err := g.try(ctx, p, req)
			if err == nil {
				return text, nil
			}
			g.logger.Warn("cached provider failed, falling back", "provider", name, "err", err)
			exhausted.Failures = append(exhausted.Failures, ProviderFailure{Provider: name, Err: err})
			tried = name
		}
	}

	for _, p := range g.providers {
		if p.Name() == tried {
			continue
		}
		if err := ctx.Err(); err != nil {
			exhausted.Failures = append(exhausted.Failures, ProviderFailure{Provider: p.Name(), Err: err})
			continue
		}
		text, err := g.try(ctx, p, req)
		if err == nil {
			return text, nil
		}
		g.logger.Debug("provider failed", "provider", p.Name(), "err", err)
		exhausted.Failures = append(exhausted.Failures, ProviderFailure{Provider: p.Name(), Err: err})
	}
	return "", exhausted
}

func (g *Gateway) try(ctx context.Context, p TextProvider, req TextRequest) (string, error) {
	start := time.Now()
	text, err := p.GenerateText(ctx, req)
	if err == nil {
		text = strings.TrimSpace(text)
		switch n := utf8.RuneCountInString(text); {
		case n == 0:
			err = ErrEmptyResponse
		case n < MinTextLength:
			err = fmt.Errorf("%w: got %d characters", ErrShortResponse, n)
		}
	}
	g.metrics.ProviderResult("text", p.Name(), err == nil, time.Since(start))
	if err != nil {
		g.health.RecordFailure(p.Name(), err)
		return "", err
	}
	g.health.RecordSuccess(p.Name())
	return text, nil
}

func (g *Gateway) lookup(name string) TextProvider {
	for _, p := range g.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Providers lists provider names in rank order.
func (g *Gateway) Providers() []string {
	names := make([]string, len(g.providers))
	for i, p := range g.providers {
		names[i] = p.Name()
	}
	return names
}

// Health returns a snapshot of the gateway's provider health.
func (g *Gateway) Health() HealthSnapshot {
	return g.health.Snapshot()
}

// Reset clears provider health and any cached responses.
func (g *Gateway) Reset() {
	g.health.Reset()
	if g.cache != nil {
		g.cache.purge()
	}
}
