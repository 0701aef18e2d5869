package autopilot

import (
	"strings"
	"time"

	"postpilot/internal/core"
)

// MaxPlanWeeks bounds how far ahead one generation may fill the calendar.
const MaxPlanWeeks = 12

// PlanSpec is the user input for a new plan.
type PlanSpec struct {
	Name          *string
	Weeks         int
	PostsPerWeek  int
	PostsPerDay   int
	Platforms     []string
	IncludeImages bool
	Cron          string
	Paused        bool
}

// PlanPatch holds the fields of a plan update; nil leaves a field unchanged.
type PlanPatch struct {
	Name          *string
	Weeks         *int
	PostsPerWeek  *int
	PostsPerDay   *int
	Platforms     *[]string
	IncludeImages *bool
	Cron          *string
	Paused        *bool
}

// NewPlan validates spec and builds a plan for userID. The next run is
// computed in loc from now when the plan is active.
func NewPlan(userID string, spec PlanSpec, now time.Time, loc *time.Location) (*core.AutopilotPlan, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &ConfigError{Field: "user_id", Reason: "is required"}
	}
	if spec.Weeks == 0 {
		spec.Weeks = 1
	}
	if strings.TrimSpace(spec.Cron) == "" {
		spec.Cron = core.DefaultPlanCron
	}
	plan := &core.AutopilotPlan{
		ID:            core.NewID(),
		UserID:        userID,
		Name:          trimmedOrNil(spec.Name),
		Weeks:         spec.Weeks,
		PostsPerWeek:  spec.PostsPerWeek,
		PostsPerDay:   spec.PostsPerDay,
		IncludeImages: spec.IncludeImages,
		Cron:          strings.TrimSpace(spec.Cron),
		Status:        core.PlanStatusActive,
	}
	if spec.Paused {
		plan.Status = core.PlanStatusPaused
	}
	platforms, err := parsePlatforms(spec.Platforms)
	if err != nil {
		return nil, err
	}
	plan.Platforms = platforms
	if err := checkPlan(plan); err != nil {
		return nil, err
	}
	return plan, refreshNextRun(plan, now, loc)
}

// ApplyPlanPatch updates plan in place and recomputes its next run when the
// cron or status changed.
func ApplyPlanPatch(plan *core.AutopilotPlan, patch PlanPatch, now time.Time, loc *time.Location) error {
	if patch.Name != nil {
		plan.Name = trimmedOrNil(patch.Name)
	}
	if patch.Weeks != nil {
		plan.Weeks = *patch.Weeks
	}
	if patch.PostsPerWeek != nil {
		plan.PostsPerWeek = *patch.PostsPerWeek
	}
	if patch.PostsPerDay != nil {
		plan.PostsPerDay = *patch.PostsPerDay
	}
	if patch.Platforms != nil {
		platforms, err := parsePlatforms(*patch.Platforms)
		if err != nil {
			return err
		}
		plan.Platforms = platforms
	}
	if patch.IncludeImages != nil {
		plan.IncludeImages = *patch.IncludeImages
	}
	scheduleChanged := false
	if patch.Cron != nil {
		expr := strings.TrimSpace(*patch.Cron)
		if expr == "" {
			return &ConfigError{Field: "cron", Reason: "cannot be empty"}
		}
		scheduleChanged = expr != plan.Cron
		plan.Cron = expr
	}
	if patch.Paused != nil {
		status := core.PlanStatusActive
		if *patch.Paused {
			status = core.PlanStatusPaused
		}
		scheduleChanged = scheduleChanged || status != plan.Status
		plan.Status = status
	}
	if err := checkPlan(plan); err != nil {
		return err
	}
	if scheduleChanged || plan.Status == core.PlanStatusPaused {
		return refreshNextRun(plan, now, loc)
	}
	return nil
}

func checkPlan(plan *core.AutopilotPlan) error {
	if plan.Weeks < 1 || plan.Weeks > MaxPlanWeeks {
		return &ConfigError{Field: "weeks", Reason: "must be between 1 and 12"}
	}
	if plan.PostsPerWeek < 0 || plan.PostsPerDay < 0 {
		return &ConfigError{Field: "cadence", Reason: "must not be negative"}
	}
	if _, err := core.ParseCron(plan.Cron); err != nil {
		return &ConfigError{Field: "cron", Reason: err.Error()}
	}
	return nil
}

func refreshNextRun(plan *core.AutopilotPlan, now time.Time, loc *time.Location) error {
	if plan.Status != core.PlanStatusActive {
		plan.NextRunAt = nil
		return nil
	}
	schedule, err := core.ParseCron(plan.Cron)
	if err != nil {
		return &ConfigError{Field: "cron", Reason: err.Error()}
	}
	if loc == nil {
		loc = time.Local
	}
	if next := core.NextOccurrences(schedule, now.In(loc), 1); len(next) == 1 {
		nextUTC := next[0].UTC()
		plan.NextRunAt = &nextUTC
	}
	return nil
}

func parsePlatforms(values []string) ([]core.Platform, error) {
	var out []core.Platform
	seen := make(map[core.Platform]bool)
	for _, v := range values {
		p := core.ParsePlatform(v)
		if p == "" {
			continue
		}
		if !knownPlatform(p) {
			return nil, &ConfigError{Field: "platforms", Reason: "unknown platform " + v}
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func knownPlatform(p core.Platform) bool {
	switch p {
	case core.PlatformTwitter, core.PlatformLinkedIn, core.PlatformInstagram, core.PlatformFacebook, core.PlatformTelegram:
		return true
	}
	return false
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
