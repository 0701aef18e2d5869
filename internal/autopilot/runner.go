package autopilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"postpilot/internal/core"
	"postpilot/internal/metrics"
	"postpilot/internal/notify"
)

// RunStore records the lifecycle of plan runs.
type RunStore interface {
	MarkRunStarted(ctx context.Context, id string, startedAt time.Time) error
	UpdateRunProgress(ctx context.Context, id string, progress int, stage string) error
	MarkRunCompleted(ctx context.Context, id string, status core.RunStatus, endedAt time.Time, counts core.RunCounts, errMsg *string) error
	UpdatePlanScheduleInfo(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time) error
}

// Runner executes a persisted plan as a tracked run.
type Runner struct {
	orchestrator *Orchestrator
	runs         RunStore
	profiles     ProfileStore
	notifier     notify.Notifier
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewRunner(orchestrator *Orchestrator, runs RunStore, profiles ProfileStore, notifier notify.Notifier, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if notifier == nil {
		notifier = &notify.NoOpNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		orchestrator: orchestrator,
		runs:         runs,
		profiles:     profiles,
		notifier:     notifier,
		metrics:      m,
		logger:       logger.With("component", "runner"),
	}
}

// Execute generates the plan's calendar and records the outcome on run.
// Store bookkeeping uses a context detached from ctx so a canceled run is
// still recorded.
func (r *Runner) Execute(ctx context.Context, plan *core.AutopilotPlan, run *core.AutopilotRun) error {
	bg := context.WithoutCancel(ctx)
	startedAt := time.Now().UTC()
	if err := r.runs.MarkRunStarted(bg, run.ID, startedAt); err != nil {
		return fmt.Errorf("mark run started: %w", err)
	}
	if err := r.runs.UpdatePlanScheduleInfo(bg, plan.ID, &startedAt, plan.NextRunAt); err != nil {
		r.logger.Warn("update plan schedule info", "plan_id", plan.ID, "err", err)
	}
	r.metrics.RunStarted()

	profile, err := r.profiles.GetProfile(bg, plan.UserID)
	if err != nil {
		return r.finish(bg, plan, run, core.RunStatusFailed, core.RunCounts{}, fmt.Sprintf("load profile: %v", err))
	}

	runID := run.ID
	progress := func(percent int, stage string) {
		if err := r.runs.UpdateRunProgress(bg, run.ID, percent, stage); err != nil {
			r.logger.Warn("update run progress", "run_id", run.ID, "err", err)
		}
	}
	res, err := r.orchestrator.RunCalendarGeneration(ctx, profile, Options{
		Weeks:         plan.Weeks,
		PostsPerWeek:  plan.PostsPerWeek,
		PostsPerDay:   plan.PostsPerDay,
		Platforms:     plan.Platforms,
		IncludeImages: plan.IncludeImages,
		Media:         run.Media,
		RunID:         &runID,
	}, progress)

	var counts core.RunCounts
	if res != nil {
		counts = res.Counts
	}
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		return r.finish(bg, plan, run, core.RunStatusCanceled, counts, "canceled before any post was composed")
	case err != nil:
		return r.finish(bg, plan, run, core.RunStatusFailed, counts, err.Error())
	case res.Canceled:
		return r.finish(bg, plan, run, core.RunStatusCanceled, counts, "")
	default:
		return r.finish(bg, plan, run, core.RunStatusSucceeded, counts, "")
	}
}

func (r *Runner) finish(ctx context.Context, plan *core.AutopilotPlan, run *core.AutopilotRun, status core.RunStatus, counts core.RunCounts, errText string) error {
	var errMsg *string
	if errText != "" {
		errMsg = &errText
	}
	if err := r.runs.MarkRunCompleted(ctx, run.ID, status, time.Now().UTC(), counts, errMsg); err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	r.metrics.RunFinished(string(status))
	r.logger.Info("run finished", "plan_id", plan.ID, "run_id", run.ID, "status", status,
		"posts_scheduled", counts.PostsScheduled)

	title := fmt.Sprintf("Autopilot %s", status)
	body := fmt.Sprintf("Plan %s: %d of %d posts scheduled", planLabel(plan), counts.PostsScheduled, counts.IdeasRequested)
	if errText != "" {
		body += "\n" + errText
	}
	if err := r.notifier.Send(ctx, title, body); err != nil {
		r.logger.Warn("send notification", "run_id", run.ID, "err", err)
	}
	return nil
}

func planLabel(plan *core.AutopilotPlan) string {
	if plan.Name != nil && *plan.Name != "" {
		return *plan.Name
	}
	return plan.ID
}
