package autopilot

import (
	"strings"
	"time"

	"postpilot/internal/core"
)

// PreviewSlot is one planned post of a preview.
type PreviewSlot struct {
	At       time.Time     `json:"at"`
	Platform core.Platform `json:"platform"`
	Category core.Category `json:"category"`
}

// Preview shows the shape of a generation without calling any provider.
type Preview struct {
	Total   int                   `json:"total"`
	PerWeek int                   `json:"posts_per_week"`
	B2B     bool                  `json:"b2b"`
	Mix     map[core.Category]int `json:"mix"`
	Slots   []PreviewSlot         `json:"slots"`
}

// Preview plans the mix and calendar slots a generation for profile would
// use. Media assets are not considered. Only the industry of profile is read.
func (o *Orchestrator) Preview(profile *core.BusinessProfile, opts Options) (*Preview, error) {
	if profile == nil || strings.TrimSpace(profile.Industry) == "" {
		return nil, &ConfigError{Field: "industry", Reason: "is required"}
	}
	if opts.Weeks < 1 {
		return nil, &ConfigError{Field: "weeks", Reason: "must be at least 1"}
	}
	if opts.PostsPerWeek < 0 || opts.PostsPerDay < 0 {
		return nil, &ConfigError{Field: "cadence", Reason: "must not be negative"}
	}
	platforms := opts.Platforms
	if len(platforms) == 0 {
		platforms = profile.PreferredPlatforms
	}
	if len(platforms) == 0 {
		platforms = defaultPlatforms
	}

	total, perWeek := o.Total(profile, opts)
	mix := core.PlanMix(total)
	groups := make([][]core.ContentIdea, len(core.Categories))
	for i, c := range core.Categories {
		groups[i] = make([]core.ContentIdea, mix[c])
		for j := range groups[i] {
			groups[i][j].Category = c
		}
	}
	order := interleave(groups)

	slotPlatforms := make([]core.Platform, len(order))
	for i := range order {
		slotPlatforms[i] = platforms[i%len(platforms)]
	}
	now := o.now()
	start := opts.Start
	if start.IsZero() {
		start = now
	}
	b2b := o.cfg.Tables.IsB2B(profile.Industry)
	times := core.SlotTimes(slotPlatforms, core.ScheduleOptions{
		Start:        start,
		PostsPerWeek: perWeek,
		TimeTables:   o.cfg.Tables.TimeTables,
		B2B:          b2b,
		Now:          now,
		Location:     o.cfg.Location,
	})

	slots := make([]PreviewSlot, len(order))
	for i, idea := range order {
		slots[i] = PreviewSlot{At: times[i], Platform: slotPlatforms[i], Category: idea.Category}
	}
	return &Preview{Total: total, PerWeek: perWeek, B2B: b2b, Mix: mix, Slots: slots}, nil
}
