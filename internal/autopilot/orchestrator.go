package autopilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"strings"
	"time"

	"postpilot/internal/core"
	"postpilot/internal/metrics"
)

// ErrNoPostsComposed is returned when a generation produced nothing to schedule.
var ErrNoPostsComposed = errors.New("no posts composed")

// ConfigError aborts a generation before any AI call is made.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("autopilot config: %s %s", e.Field, e.Reason)
}

// IdeaSource produces topics for a category. It never fails; it returns
// fewer or template ideas instead.
type IdeaSource interface {
	GenerateIdeas(ctx context.Context, profile *core.BusinessProfile, category core.Category, count int) []core.ContentIdea
}

// PostComposer expands ideas and media into finished posts.
type PostComposer interface {
	ComposePost(ctx context.Context, idea core.ContentIdea, profile *core.BusinessProfile, platform core.Platform) (core.ComposedPost, error)
	ComposeFromMedia(ctx context.Context, asset core.MediaAsset, desc core.MediaDescription, category core.Category, profile *core.BusinessProfile, platform core.Platform) (core.ComposedPost, error)
}

// MediaDescriber explains what a user-supplied asset shows.
type MediaDescriber interface {
	Describe(ctx context.Context, mediaURL, contextText string) (core.MediaDescription, error)
}

// PostStore persists the generated calendar.
type PostStore interface {
	InsertScheduledPosts(ctx context.Context, posts []*core.ScheduledPost) error
}

// ProfileStore loads the business profile a plan generates for.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*core.BusinessProfile, error)
}

// ProgressFunc receives the completion percentage and a stage label.
type ProgressFunc func(percent int, stage string)

const (
	StagePlanning   = "planning"
	StageIdeas      = "generating ideas"
	StageComposing  = "composing posts"
	StageScheduling = "scheduling"
	StageDone       = "done"
)

var defaultPlatforms = []core.Platform{core.PlatformLinkedIn, core.PlatformInstagram, core.PlatformFacebook}

// Options describe one calendar generation.
type Options struct {
	Weeks int
	// PostsPerWeek overrides the industry cadence when positive.
	PostsPerWeek int
	// PostsPerDay switches to a fixed daily cadence when positive.
	PostsPerDay   int
	Platforms     []core.Platform
	IncludeImages bool
	// Media is consumed before any AI idea is requested.
	Media []core.MediaAsset
	// Start is the first calendar day; zero means today.
	Start time.Time
	RunID *string
}

// Result is the outcome of a generation. Canceled results still carry every
// post composed before the cancellation.
type Result struct {
	Posts    []*core.ScheduledPost
	Counts   core.RunCounts
	Canceled bool
}

// Config wires an Orchestrator.
type Config struct {
	Ideas    IdeaSource
	Composer PostComposer
	// TextOnly is used when images are off. Defaults to Composer.
	TextOnly  PostComposer
	Describer MediaDescriber
	Store     PostStore
	Tables    core.Tables
	Location  *time.Location
	// PaceMin and PaceMax bound the random delay between compositions.
	PaceMin time.Duration
	PaceMax time.Duration
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Orchestrator runs the mix, idea, compose and schedule pipeline.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.TextOnly == nil {
		cfg.TextOnly = cfg.Composer
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Tables.TimeTables == nil {
		cfg.Tables = core.DefaultTables()
	}
	if cfg.PaceMax < cfg.PaceMin {
		cfg.PaceMax = cfg.PaceMin
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{cfg: cfg, logger: logger.With("component", "autopilot"), now: now}
}

// Tables returns the scheduling heuristics in use.
func (o *Orchestrator) Tables() core.Tables {
	return o.cfg.Tables
}

// Total returns how many posts a generation for profile would request and
// the weekly cadence used to spread them.
func (o *Orchestrator) Total(profile *core.BusinessProfile, opts Options) (total, perWeek int) {
	if opts.PostsPerDay > 0 {
		perWeek = 7 * opts.PostsPerDay
	} else if opts.PostsPerWeek > 0 {
		perWeek = opts.PostsPerWeek
	} else {
		perWeek = o.cfg.Tables.PostsPerWeekFor(profile.Industry)
	}
	return opts.Weeks * perWeek, perWeek
}

func validate(profile *core.BusinessProfile, opts Options) error {
	if profile == nil {
		return &ConfigError{Field: "profile", Reason: "is missing"}
	}
	if strings.TrimSpace(profile.BusinessName) == "" {
		return &ConfigError{Field: "business name", Reason: "is required"}
	}
	if strings.TrimSpace(profile.Industry) == "" {
		return &ConfigError{Field: "industry", Reason: "is required"}
	}
	if opts.Weeks < 1 {
		return &ConfigError{Field: "weeks", Reason: "must be at least 1"}
	}
	if opts.PostsPerWeek < 0 || opts.PostsPerDay < 0 {
		return &ConfigError{Field: "cadence", Reason: "must not be negative"}
	}
	return nil
}

// RunCalendarGeneration fills opts.Weeks of calendar for profile. It fails
// only on a *ConfigError, a persistence error, or when nothing could be
// composed; individual composition failures are logged and skipped.
// Cancelling ctx stops composing and schedules what was already written.
func (o *Orchestrator) RunCalendarGeneration(ctx context.Context, profile *core.BusinessProfile, opts Options, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	if err := validate(profile, opts); err != nil {
		return nil, err
	}
	platforms := opts.Platforms
	if len(platforms) == 0 {
		platforms = profile.PreferredPlatforms
	}
	if len(platforms) == 0 {
		platforms = defaultPlatforms
	}
	composer := o.cfg.TextOnly
	if opts.IncludeImages {
		composer = o.cfg.Composer
	}

	progress(5, StagePlanning)
	total, perWeek := o.Total(profile, opts)
	logger := o.logger.With("user_id", profile.UserID, "total", total)
	logger.Info("calendar generation started", "weeks", opts.Weeks, "posts_per_week", perWeek, "media", len(opts.Media))

	var (
		counts   core.RunCounts
		composed []core.ComposedPost
		canceled bool
		turn     int
	)
	nextPlatform := func() core.Platform {
		p := platforms[turn%len(platforms)]
		turn++
		return p
	}

	mediaUsed := min(len(opts.Media), total)
	counts.IdeasRequested = mediaUsed
	for i := 0; i < mediaUsed; i++ {
		if i > 0 && !o.pace(ctx) {
			canceled = true
			break
		}
		asset := opts.Media[i]
		category := core.Categories[i%len(core.Categories)]
		post, err := o.composeMedia(ctx, composer, asset, category, profile, func(suggested []core.Platform) core.Platform {
			if p, ok := suggestedPlatform(suggested, platforms); ok {
				return p
			}
			return nextPlatform()
		})
		if err != nil {
			if ctx.Err() != nil {
				canceled = true
				break
			}
			logger.Warn("media post skipped", "asset_id", asset.ID, "err", err)
			continue
		}
		composed = append(composed, post)
	}

	var ideas []core.ContentIdea
	if !canceled {
		progress(20, StageIdeas)
		mix := core.PlanMix(total - mediaUsed)
		counts.IdeasRequested += core.MixTotal(mix)
		perCategory := make([][]core.ContentIdea, len(core.Categories))
		for i, c := range core.Categories {
			if ctx.Err() != nil {
				canceled = true
				break
			}
			if mix[c] == 0 {
				continue
			}
			perCategory[i] = o.cfg.Ideas.GenerateIdeas(ctx, profile, c, mix[c])
		}
		ideas = interleave(perCategory)
	}

	if !canceled {
		progress(55, StageComposing)
		for i, idea := range ideas {
			if (i > 0 || len(composed) > 0) && !o.pace(ctx) {
				canceled = true
				break
			}
			post, err := composer.ComposePost(ctx, idea, profile, nextPlatform())
			if err != nil {
				if ctx.Err() != nil {
					canceled = true
					break
				}
				logger.Warn("post skipped", "category", idea.Category, "err", err)
				continue
			}
			composed = append(composed, post)
		}
	}
	counts.PostsComposed = len(composed)

	if len(composed) == 0 {
		if canceled {
			return &Result{Counts: counts, Canceled: true}, fmt.Errorf("%w: %w", ErrNoPostsComposed, ctx.Err())
		}
		return &Result{Counts: counts}, ErrNoPostsComposed
	}

	progress(90, StageScheduling)
	now := o.now()
	start := opts.Start
	if start.IsZero() {
		start = now
	}
	posts := core.BuildScheduledPosts(profile.UserID, opts.RunID, composed, core.ScheduleOptions{
		Start:        start,
		PostsPerWeek: perWeek,
		TimeTables:   o.cfg.Tables.TimeTables,
		B2B:          o.cfg.Tables.IsB2B(profile.Industry),
		Now:          now,
		Location:     o.cfg.Location,
	})
	// Composed posts survive a cancellation.
	if err := o.cfg.Store.InsertScheduledPosts(context.WithoutCancel(ctx), posts); err != nil {
		return &Result{Counts: counts, Canceled: canceled}, fmt.Errorf("persist calendar: %w", err)
	}
	counts.PostsScheduled = len(posts)
	o.cfg.Metrics.PostsScheduled(len(posts))
	progress(100, StageDone)

	logger.Info("calendar generation finished",
		"ideas_requested", counts.IdeasRequested,
		"posts_composed", counts.PostsComposed,
		"posts_scheduled", counts.PostsScheduled,
		"canceled", canceled)
	return &Result{Posts: posts, Counts: counts, Canceled: canceled}, nil
}

// composeMedia describes the asset, then captions it for the platform pick
// chooses from the description's suggestions.
func (o *Orchestrator) composeMedia(ctx context.Context, composer PostComposer, asset core.MediaAsset, category core.Category, profile *core.BusinessProfile, pick func([]core.Platform) core.Platform) (core.ComposedPost, error) {
	var desc core.MediaDescription
	if o.cfg.Describer != nil && asset.URL != "" {
		d, err := o.cfg.Describer.Describe(ctx, asset.URL, profile.ContextText())
		if err != nil {
			o.logger.Warn("media description failed", "asset_id", asset.ID, "err", err)
		} else {
			desc = d
		}
	}
	return composer.ComposeFromMedia(ctx, asset, desc, category, profile, pick(desc.SuggestedPlatforms))
}

// suggestedPlatform returns the first suggestion the run targets.
func suggestedPlatform(suggested, targets []core.Platform) (core.Platform, bool) {
	for _, p := range suggested {
		if slices.Contains(targets, p) {
			return p, true
		}
	}
	return "", false
}

// pace sleeps a random duration between PaceMin and PaceMax. It returns
// false if ctx ended first.
func (o *Orchestrator) pace(ctx context.Context) bool {
	d := o.cfg.PaceMin
	if spread := o.cfg.PaceMax - o.cfg.PaceMin; spread > 0 {
		d += time.Duration(rand.Int63n(int64(spread)))
	}
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// interleave takes one idea from each category in turn so categories are
// spread through the calendar instead of clustered.
func interleave(groups [][]core.ContentIdea) []core.ContentIdea {
	var out []core.ContentIdea
	for i := 0; ; i++ {
		added := false
		for _, g := range groups {
			if i < len(g) {
				out = append(out, g[i])
				added = true
			}
		}
		if !added {
			return out
		}
	}
}
