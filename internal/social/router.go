package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"postpilot/internal/core"
)

// ErrNoPoster is returned when no poster is registered for a platform.
var ErrNoPoster = errors.New("no poster configured for platform")

// Poster publishes content to one social account and returns the remote post id.
type Poster interface {
	Publish(ctx context.Context, account core.AccountRef, content string, mediaURLs []string) (string, error)
}

// Router sends each post to the poster registered for its platform, falling
// back to a default poster when one is set.
type Router struct {
	posters  map[core.Platform]Poster
	fallback Poster
}

func NewRouter(fallback Poster) *Router {
	return &Router{posters: make(map[core.Platform]Poster), fallback: fallback}
}

// Handle registers p for platform. It is not safe to call once publishing started.
func (r *Router) Handle(platform core.Platform, p Poster) {
	r.posters[platform] = p
}

func (r *Router) Publish(ctx context.Context, account core.AccountRef, content string, mediaURLs []string) (string, error) {
	p, ok := r.posters[account.Platform]
	if !ok {
		p = r.fallback
	}
	if p == nil {
		return "", fmt.Errorf("%w: %s", ErrNoPoster, account.Platform)
	}
	return p.Publish(ctx, account, content, mediaURLs)
}

// DryRun logs posts instead of sending them.
type DryRun struct {
	logger *slog.Logger
}

func NewDryRun(logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{logger: logger.With("component", "dry-run-poster")}
}

func (d *DryRun) Publish(_ context.Context, account core.AccountRef, content string, mediaURLs []string) (string, error) {
	id := "dryrun-" + uuid.NewString()
	d.logger.Info("would publish post",
		"user_id", account.UserID,
		"platform", account.Platform,
		"chars", len([]rune(content)),
		"media", len(mediaURLs),
		"remote_id", id)
	return id, nil
}
