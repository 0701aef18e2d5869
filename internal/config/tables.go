package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"postpilot/internal/core"
)

// tablesFile mirrors the YAML layout of a scheduling override file:
//
//	best_times:
//	  linkedin: ["08:00", "12:00", "17:00"]
//	posts_per_week:
//	  bakery: 6
//	default_posts_per_week: 4
//	b2b_industries: [saas, legal]
type tablesFile struct {
	BestTimes           map[string][]string `mapstructure:"best_times"`
	PostsPerWeek        map[string]int      `mapstructure:"posts_per_week"`
	DefaultPostsPerWeek int                 `mapstructure:"default_posts_per_week"`
	B2BIndustries       []string            `mapstructure:"b2b_industries"`
}

// LoadTables returns the built-in scheduling tables with any entries from
// path layered on top. An empty path returns the defaults.
func LoadTables(path string) (core.Tables, error) {
	tables := core.DefaultTables()
	if path == "" {
		return tables, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return tables, fmt.Errorf("read tables file: %w", err)
	}
	var raw tablesFile
	if err := v.Unmarshal(&raw); err != nil {
		return tables, fmt.Errorf("decode tables file: %w", err)
	}

	for platform, values := range raw.BestTimes {
		slots := make([]core.TimeOfDay, 0, len(values))
		for _, value := range values {
			slot, err := core.ParseTimeOfDay(value)
			if err != nil {
				return tables, fmt.Errorf("best_times.%s: %w", platform, err)
			}
			slots = append(slots, slot)
		}
		if len(slots) > 0 {
			tables.TimeTables[core.ParsePlatform(platform)] = slots
		}
	}
	for industry, n := range raw.PostsPerWeek {
		if n <= 0 {
			return tables, fmt.Errorf("posts_per_week.%s must be positive", industry)
		}
		tables.PostsPerWeek[strings.ToLower(strings.TrimSpace(industry))] = n
	}
	if raw.DefaultPostsPerWeek > 0 {
		tables.DefaultPostsPerWeek = raw.DefaultPostsPerWeek
	}
	if len(raw.B2BIndustries) > 0 {
		tables.B2BIndustries = raw.B2BIndustries
	}
	return tables, nil
}
