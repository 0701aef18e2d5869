package ai

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"postpilot/internal/metrics"
)

// ImageGateway ranks image providers the same way Gateway ranks text ones.
type ImageGateway struct {
	providers []ImageProvider
	health    *HealthState
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewImageGateway builds an image gateway. health may be nil.
func NewImageGateway(providers []ImageProvider, health *HealthState, m *metrics.Metrics, logger *slog.Logger) *ImageGateway {
	if health == nil {
		health = NewHealthState(DefaultCooldown)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageGateway{
		providers: providers,
		health:    health,
		metrics:   m,
		logger:    logger.With("component", "image_gateway"),
	}
}

// GenerateImage returns the URL of a generated image.
func (g *ImageGateway) GenerateImage(ctx context.Context, prompt, style string) (string, error) {
	exhausted := &ExhaustedError{Kind: "image"}
	tried := ""
	if name, ok := g.health.Working(); ok {
		for _, p := range g.providers {
			if p.Name() != name {
				continue
			}
			url, err := g.try(ctx, p, prompt, style)
			if err == nil {
				return url, nil
			}
			exhausted.Failures = append(exhausted.Failures, ProviderFailure{Provider: name, Err: err})
			tried = name
		}
	}
	for _, p := range g.providers {
		if p.Name() == tried {
			continue
		}
		url, err := g.try(ctx, p, prompt, style)
		if err == nil {
			return url, nil
		}
		g.logger.Debug("image provider failed", "provider", p.Name(), "err", err)
		exhausted.Failures = append(exhausted.Failures, ProviderFailure{Provider: p.Name(), Err: err})
	}
	return "", exhausted
}

func (g *ImageGateway) try(ctx context.Context, p ImageProvider, prompt, style string) (string, error) {
	start := time.Now()
	url, err := p.GenerateImage(ctx, prompt, style)
	if err == nil && strings.TrimSpace(url) == "" {
		err = ErrEmptyResponse
	}
	g.metrics.ProviderResult("image", p.Name(), err == nil, time.Since(start))
	if err != nil {
		g.health.RecordFailure(p.Name(), err)
		return "", err
	}
	g.health.RecordSuccess(p.Name())
	return strings.TrimSpace(url), nil
}

func (g *ImageGateway) Health() HealthSnapshot {
	return g.health.Snapshot()
}

func (g *ImageGateway) Reset() {
	g.health.Reset()
}

// Enabled reports whether any image provider is configured.
func (g *ImageGateway) Enabled() bool {
	return g != nil && len(g.providers) > 0
}
