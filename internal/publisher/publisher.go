package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"postpilot/internal/core"
	"postpilot/internal/logging"
	"postpilot/internal/metrics"
	"postpilot/internal/notify"
	"postpilot/internal/store"
)

const (
	DefaultInterval    = 60 * time.Second
	DefaultBatchSize   = 10
	DefaultMaxAttempts = 10
)

// Store is the slice of persistence the publisher needs.
type Store interface {
	QueryDuePosts(ctx context.Context, now time.Time, limit int) ([]*core.ScheduledPost, error)
	MarkPostPublished(ctx context.Context, id string, publishedAt time.Time, remoteID string) error
	RecordPublishFailure(ctx context.Context, id, errMsg string, maxAttempts int) (int, core.PostStatus, error)
}

// Poster sends one post to its social account and returns the remote id.
type Poster interface {
	Publish(ctx context.Context, account core.AccountRef, content string, mediaURLs []string) (string, error)
}

type Options struct {
	Interval  time.Duration
	BatchSize int
	// MaxAttempts moves a post to failed after that many failed publishes.
	// Zero keeps retrying forever.
	MaxAttempts int
	Notifier    notify.Notifier
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

// TickReport summarizes one pass over due posts.
type TickReport struct {
	Due       int `json:"due"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
}

// Publisher sends due posts. Ticks never overlap, whether triggered by the
// timer or by hand.
type Publisher struct {
	store  Store
	poster Poster
	opts   Options
	logger *slog.Logger

	tickMu sync.Mutex

	mu   sync.Mutex
	cron *cron.Cron
}

func New(st Store, poster Poster, opts Options) *Publisher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}
	if opts.Notifier == nil {
		opts.Notifier = &notify.NoOpNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{
		store:  st,
		poster: poster,
		opts:   opts,
		logger: opts.Logger.With("component", "publisher"),
	}
}

// Tick publishes every post that is due now, up to the batch size.
func (p *Publisher) Tick(ctx context.Context) (TickReport, error) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	started := time.Now()
	defer func() { p.opts.Metrics.TickObserved(time.Since(started)) }()

	var report TickReport
	due, err := p.store.QueryDuePosts(ctx, p.opts.Now().UTC(), p.opts.BatchSize)
	if err != nil {
		return report, fmt.Errorf("query due posts: %w", err)
	}
	report.Due = len(due)

	for _, post := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		switch p.publishOne(ctx, post) {
		case outcomePublished:
			report.Published++
		case outcomeFailed:
			report.Failed++
		case outcomeAbandoned:
			report.Failed++
			report.Abandoned++
		}
	}
	if report.Due > 0 {
		p.logger.Info("publisher tick", "due", report.Due, "published", report.Published, "failed", report.Failed, "abandoned", report.Abandoned)
	}
	return report, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomePublished
	outcomeFailed
	outcomeAbandoned
)

func (p *Publisher) publishOne(ctx context.Context, post *core.ScheduledPost) outcome {
	logger := p.logger.With("post_id", post.ID, "platform", post.Platform)
	account := core.AccountRef{UserID: post.UserID, Platform: post.Platform}

	remoteID, pubErr := p.poster.Publish(ctx, account, post.Content, post.MediaURLs())
	if pubErr == nil {
		err := p.store.MarkPostPublished(ctx, post.ID, p.opts.Now().UTC(), remoteID)
		if errors.Is(err, store.ErrPostNotScheduled) {
			logger.Warn("post changed state while publishing")
			return outcomeSkipped
		}
		if err != nil {
			logger.Error("mark post published", "err", err)
			return outcomeFailed
		}
		p.opts.Metrics.PostPublished(string(post.Platform))
		return outcomePublished
	}

	p.opts.Metrics.PublishFailed(string(post.Platform))
	attempts, status, err := p.store.RecordPublishFailure(ctx, post.ID, pubErr.Error(), p.opts.MaxAttempts)
	if errors.Is(err, store.ErrPostNotScheduled) {
		return outcomeSkipped
	}
	if err != nil {
		logger.Error("record publish failure", "publish_err", pubErr, "err", err)
		return outcomeFailed
	}
	if status != core.PostStatusFailed {
		logger.Warn("publish failed, will retry", "attempts", attempts, "err", pubErr)
		return outcomeFailed
	}

	logger.Error("giving up on post", "attempts", attempts, "err", pubErr)
	p.opts.Metrics.PostAbandoned(string(post.Platform))
	title := fmt.Sprintf("Post to %s failed", post.Platform)
	body := fmt.Sprintf("Post %s for user %s failed %d times: %v", post.ID, post.UserID, attempts, pubErr)
	if err := p.opts.Notifier.Send(context.WithoutCancel(ctx), title, body); err != nil {
		logger.Warn("send abandon notification", "err", err)
	}
	return outcomeAbandoned
}

// Start ticks every interval until Stop is called or ctx is done.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return
	}
	cronLogger := logging.CronLogger(p.logger)
	c := cron.New(
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		cron.WithLogger(cronLogger),
	)
	c.Schedule(cron.Every(p.opts.Interval), cron.FuncJob(func() {
		if _, err := p.Tick(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("publisher tick", "err", err)
		}
	}))
	c.Start()
	p.cron = c

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	p.logger.Info("publisher started", "interval", p.opts.Interval.String(), "batch_size", p.opts.BatchSize, "max_attempts", p.opts.MaxAttempts)
}

// Stop halts the timer and waits for a tick in progress.
func (p *Publisher) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	p.logger.Info("publisher stopped")
}
