package autopilot

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
)

var (
	ErrPlanRunning  = errors.New("plan is already running")
	ErrRunNotActive = errors.New("run is not active")
)

// PlanStore abstracts the persistence the scheduler needs.
type PlanStore interface {
	GetPlan(ctx context.Context, id string) (*core.AutopilotPlan, error)
	ListPlans(ctx context.Context, userID string, status *core.PlanStatus) ([]*core.AutopilotPlan, error)
	UpdatePlanNextRun(ctx context.Context, id string, nextRunAt *time.Time) error

	InsertRun(ctx context.Context, run *core.AutopilotRun) error
	PruneOldRuns(ctx context.Context, planID string) (int64, error)
}

// Executor runs one plan generation.
type Executor interface {
	Execute(ctx context.Context, plan *core.AutopilotPlan, run *core.AutopilotRun) error
}

type activeRun struct {
	runID  string
	cancel context.CancelFunc
}

// Scheduler refreshes active plans on their cron and dispatches manual runs.
// A plan never has two runs in flight.
type Scheduler struct {
	store    PlanStore
	executor Executor
	logger   *slog.Logger
	location *time.Location

	cron    *cron.Cron
	entryMu sync.RWMutex
	entries map[string]cron.EntryID

	runMu   sync.Mutex
	running map[string]activeRun // planID -> run
	wg      sync.WaitGroup

	ctx context.Context
}

func NewScheduler(store PlanStore, executor Executor, logger *slog.Logger, location *time.Location) *Scheduler {
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(
		cron.WithParser(core.CronParser),
		cron.WithLocation(location),
		cron.WithLogger(logging.CronLogger(logger)),
	)
	return &Scheduler{
		store:    store,
		executor: executor,
		logger:   logger.With("component", "plan-scheduler"),
		location: location,
		cron:     c,
		entries:  make(map[string]cron.EntryID),
		running:  make(map[string]activeRun),
	}
}

// Start begins the cron loop. ctx is the parent of every run.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
}

// Stop halts the cron loop, cancels in-flight runs and waits for them to
// record their outcome or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	<-s.cron.Stop().Done()
	s.runMu.Lock()
	for _, r := range s.running {
		r.cancel()
	}
	s.runMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("stopped before runs finished", "err", ctx.Err())
	}
}

// Sync loads all plans and schedules the active ones.
func (s *Scheduler) Sync(ctx context.Context) error {
	plans, err := s.store.ListPlans(ctx, "", nil)
	if err != nil {
		return fmt.Errorf("list plans: %w", err)
	}
	for _, plan := range plans {
		if plan.Status == core.PlanStatusActive {
			if err := s.schedulePlan(ctx, plan); err != nil {
				s.logger.Error("schedule plan", "plan_id", plan.ID, "err", err)
			}
		} else {
			s.unschedulePlan(plan.ID)
		}
	}
	return nil
}

// AddOrUpdatePlan refreshes the cron entry of a created or modified plan.
func (s *Scheduler) AddOrUpdatePlan(ctx context.Context, plan *core.AutopilotPlan) error {
	s.unschedulePlan(plan.ID)
	if plan.Status == core.PlanStatusActive {
		return s.schedulePlan(ctx, plan)
	}
	return nil
}

func (s *Scheduler) RemovePlan(planID string) {
	s.unschedulePlan(planID)
	s.runMu.Lock()
	if r, ok := s.running[planID]; ok {
		r.cancel()
	}
	s.runMu.Unlock()
}

// RunNow starts a generation for the plan immediately. Media, when given,
// is captioned before any AI idea is requested.
func (s *Scheduler) RunNow(ctx context.Context, plan *core.AutopilotPlan, media ...core.MediaAsset) (*core.AutopilotRun, error) {
	run := &core.AutopilotRun{
		ID:          core.NewID(),
		PlanID:      plan.ID,
		UserID:      plan.UserID,
		Status:      core.RunStatusQueued,
		ScheduledAt: time.Now().UTC(),
		Media:       media,
	}
	runCtx, ok := s.reserve(plan.ID, run.ID)
	if !ok {
		return nil, ErrPlanRunning
	}
	if err := s.store.InsertRun(ctx, run); err != nil {
		s.release(plan.ID)
		return nil, err
	}
	s.launch(runCtx, plan, run)
	return run, nil
}

// CancelRun stops an in-flight run. Posts composed so far are kept.
func (s *Scheduler) CancelRun(runID string) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	for _, r := range s.running {
		if r.runID == runID {
			r.cancel()
			return nil
		}
	}
	return ErrRunNotActive
}

func (s *Scheduler) IsRunning(planID string) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	_, ok := s.running[planID]
	return ok
}

// NextRun reports the next cron fire time of a scheduled plan.
func (s *Scheduler) NextRun(planID string) (time.Time, bool) {
	id, ok := s.getEntryID(planID)
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(id).Next
	return next, !next.IsZero()
}

func (s *Scheduler) schedulePlan(ctx context.Context, plan *core.AutopilotPlan) error {
	schedule, err := core.ParseCron(plan.Cron)
	if err != nil {
		return err
	}
	now := time.Now().In(s.location)
	if next := core.NextOccurrences(schedule, now, 1); len(next) == 1 {
		nextUTC := next[0].UTC()
		if err := s.store.UpdatePlanNextRun(ctx, plan.ID, &nextUTC); err != nil {
			s.logger.Warn("update next_run_at failed", "plan_id", plan.ID, "err", err)
		}
	}
	planID := plan.ID
	job := func() {
		entryID, ok := s.getEntryID(planID)
		if !ok {
			return
		}
		entry := s.cron.Entry(entryID)
		scheduledAt := entry.Prev
		if scheduledAt.IsZero() {
			scheduledAt = time.Now().In(s.location)
		}
		if next := entry.Next; !next.IsZero() {
			nextUTC := next.UTC()
			if err := s.store.UpdatePlanNextRun(s.ctxOrBackground(), planID, &nextUTC); err != nil {
				s.logger.Error("update next_run_at", "plan_id", planID, "err", err)
			}
		}
		s.handleScheduledTrigger(planID, scheduledAt.UTC())
	}
	s.setEntryID(plan.ID, s.cron.Schedule(schedule, cron.FuncJob(job)))
	return nil
}

func (s *Scheduler) handleScheduledTrigger(planID string, scheduledAt time.Time) {
	ctx := s.ctxOrBackground()
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		s.logger.Error("fetch plan for scheduled run", "plan_id", planID, "err", err)
		return
	}
	if plan.Status != core.PlanStatusActive {
		return
	}
	run := &core.AutopilotRun{
		ID:          core.NewID(),
		PlanID:      plan.ID,
		UserID:      plan.UserID,
		Status:      core.RunStatusQueued,
		ScheduledAt: scheduledAt,
	}
	runCtx, ok := s.reserve(plan.ID, run.ID)
	if !ok {
		s.logger.Info("skipping run because plan is already running", "plan_id", plan.ID)
		run.Status = core.RunStatusSkipped
		if err := s.store.InsertRun(ctx, run); err != nil {
			s.logger.Error("record skipped run", "plan_id", plan.ID, "err", err)
		}
		return
	}
	if err := s.store.InsertRun(ctx, run); err != nil {
		s.logger.Error("insert run", "plan_id", plan.ID, "err", err)
		s.release(plan.ID)
		return
	}
	s.launch(runCtx, plan, run)
}

// reserve claims the plan for runID before its run row is written, so a
// losing caller never leaves a queued row behind. It returns false if
// another run holds the plan.
func (s *Scheduler) reserve(planID, runID string) (context.Context, bool) {
	runCtx, cancel := context.WithCancel(s.ctxOrBackground())
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if _, busy := s.running[planID]; busy {
		cancel()
		return nil, false
	}
	s.running[planID] = activeRun{runID: runID, cancel: cancel}
	s.wg.Add(1)
	return runCtx, true
}

// release frees a reservation taken by reserve.
func (s *Scheduler) release(planID string) {
	s.runMu.Lock()
	if r, ok := s.running[planID]; ok {
		r.cancel()
		delete(s.running, planID)
	}
	s.runMu.Unlock()
	s.wg.Done()
}

// launch runs a reserved plan in the background.
func (s *Scheduler) launch(runCtx context.Context, plan *core.AutopilotPlan, run *core.AutopilotRun) {
	go func() {
		defer s.release(plan.ID)
		if err := s.executor.Execute(runCtx, plan, run); err != nil {
			s.logger.Error("execute plan", "plan_id", plan.ID, "run_id", run.ID, "err", err)
		}
		if _, err := s.store.PruneOldRuns(context.WithoutCancel(runCtx), plan.ID); err != nil {
			s.logger.Warn("prune runs", "plan_id", plan.ID, "err", err)
		}
	}()
}

func (s *Scheduler) setEntryID(planID string, entryID cron.EntryID) {
	s.entryMu.Lock()
	defer s.entryMu.Unlock()
	s.entries[planID] = entryID
}

func (s *Scheduler) getEntryID(planID string) (cron.EntryID, bool) {
	s.entryMu.RLock()
	defer s.entryMu.RUnlock()
	id, ok := s.entries[planID]
	return id, ok
}

func (s *Scheduler) unschedulePlan(planID string) {
	s.entryMu.Lock()
	defer s.entryMu.Unlock()
	if entryID, ok := s.entries[planID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, planID)
	}
}

func (s *Scheduler) ctxOrBackground() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}
