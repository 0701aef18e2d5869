package core

import (
	"fmt"
	"strings"
)

// TimeOfDay is an hour/minute posting slot in the scheduling location.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(strings.TrimSpace(value), "%d:%d", &t.Hour, &t.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", value, err)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", value)
	}
	return t, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// TimeTables maps each platform to its ordered list of best posting times.
type TimeTables map[Platform][]TimeOfDay

// DefaultPlatform keys the table used for platforms without their own entry.
const DefaultPlatform Platform = "default"

// For returns the table for platform, falling back to the default entry.
func (t TimeTables) For(platform Platform) []TimeOfDay {
	if slots := t[platform]; len(slots) > 0 {
		return slots
	}
	if slots := t[DefaultPlatform]; len(slots) > 0 {
		return slots
	}
	return []TimeOfDay{{Hour: 10}, {Hour: 14}, {Hour: 18}}
}

// Tables bundles the scheduling heuristics that can be overridden from config.
type Tables struct {
	TimeTables          TimeTables
	PostsPerWeek        map[string]int
	DefaultPostsPerWeek int
	B2BIndustries       []string
}

// DefaultTables returns the built-in posting heuristics.
func DefaultTables() Tables {
	return Tables{
		TimeTables: TimeTables{
			PlatformTwitter:   {{Hour: 9}, {Hour: 12}, {Hour: 15}, {Hour: 18}},
			PlatformLinkedIn:  {{Hour: 8}, {Hour: 12}, {Hour: 17}},
			PlatformInstagram: {{Hour: 11}, {Hour: 14}, {Hour: 19}},
			PlatformFacebook:  {{Hour: 9}, {Hour: 13}, {Hour: 15}},
			PlatformTelegram:  {{Hour: 10}, {Hour: 16}, {Hour: 20}},
			DefaultPlatform:   {{Hour: 10}, {Hour: 14}, {Hour: 18}},
		},
		PostsPerWeek: map[string]int{
			"restaurant":    7,
			"food":          7,
			"retail":        5,
			"ecommerce":     5,
			"fitness":       5,
			"beauty":        5,
			"real estate":   4,
			"technology":    4,
			"saas":          3,
			"consulting":    3,
			"finance":       3,
			"legal":         2,
			"healthcare":    3,
			"education":     4,
			"manufacturing": 2,
		},
		DefaultPostsPerWeek: 4,
		B2BIndustries: []string{
			"b2b", "saas", "consulting", "finance", "legal", "accounting",
			"manufacturing", "professional services", "insurance", "logistics",
		},
	}
}

// PostsPerWeekFor returns the cadence for an industry. Matching is a
// case-insensitive substring test so "Italian Restaurant" hits "restaurant".
func (t Tables) PostsPerWeekFor(industry string) int {
	key := strings.ToLower(strings.TrimSpace(industry))
	if n, ok := t.PostsPerWeek[key]; ok && n > 0 {
		return n
	}
	best, bestLen := 0, 0
	for name, n := range t.PostsPerWeek {
		if n > 0 && strings.Contains(key, name) && len(name) > bestLen {
			best, bestLen = n, len(name)
		}
	}
	if best > 0 {
		return best
	}
	if t.DefaultPostsPerWeek > 0 {
		return t.DefaultPostsPerWeek
	}
	return 4
}

// IsB2B reports whether posts for this industry should skip weekends.
func (t Tables) IsB2B(industry string) bool {
	key := strings.ToLower(strings.TrimSpace(industry))
	if key == "" {
		return false
	}
	for _, name := range t.B2BIndustries {
		if strings.Contains(key, strings.ToLower(name)) {
			return true
		}
	}
	return false
}
