package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"postpilot/internal/autopilot"
	"postpilot/internal/core"
)

type cronPreviewRequest struct {
	Expr  string `json:"expr"`
	Now   string `json:"now,omitempty"`
	Count int    `json:"count,omitempty"`
}

type cronPreviewResponse struct {
	Valid     bool     `json:"valid"`
	NextTimes []string `json:"next_times,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func (s *Server) handleCronPreview(w http.ResponseWriter, r *http.Request) {
	var req cronPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, cronPreviewResponse{Valid: false, Message: "invalid JSON payload"})
		return
	}
	expr := strings.TrimSpace(req.Expr)
	if expr == "" {
		writeJSON(w, http.StatusBadRequest, cronPreviewResponse{Valid: false, Message: "cron expression is required"})
		return
	}
	schedule, err := core.ParseCron(expr)
	if err != nil {
		writeJSON(w, http.StatusOK, cronPreviewResponse{Valid: false, Message: err.Error()})
		return
	}

	count := req.Count
	if count <= 0 || count > 10 {
		count = 5
	}
	base := time.Now().In(s.location)
	if req.Now != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Now); err == nil {
			base = parsed.In(s.location)
		}
	}

	times := core.NextOccurrences(schedule, base, count)
	formatted := make([]string, 0, len(times))
	for _, t := range times {
		formatted = append(formatted, t.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, cronPreviewResponse{Valid: true, NextTimes: formatted})
}

type mixPreviewResponse struct {
	Total   int                   `json:"total"`
	Planned int                   `json:"planned"`
	Mix     map[core.Category]int `json:"mix"`
}

func (s *Server) handleMixPreview(w http.ResponseWriter, r *http.Request) {
	total := parseIntDefault(r.URL.Query().Get("total"), -1)
	if total < 0 || total > 1000 {
		writeError(w, http.StatusBadRequest, "invalid_input", "total must be between 0 and 1000")
		return
	}
	mix := core.PlanMix(total)
	writeJSON(w, http.StatusOK, mixPreviewResponse{Total: total, Planned: core.MixTotal(mix), Mix: mix})
}

type schedulePreviewRequest struct {
	UserID       string   `json:"user_id,omitempty"`
	Industry     string   `json:"industry,omitempty"`
	Weeks        int      `json:"weeks"`
	PostsPerWeek int      `json:"posts_per_week,omitempty"`
	PostsPerDay  int      `json:"posts_per_day,omitempty"`
	Platforms    []string `json:"platforms,omitempty"`
	Start        string   `json:"start,omitempty"`
}

// handleSchedulePreview plans a calendar without generating any content.
// The industry comes from the request or, failing that, the user's profile.
func (s *Server) handleSchedulePreview(w http.ResponseWriter, r *http.Request) {
	var req schedulePreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	profile := &core.BusinessProfile{Industry: strings.TrimSpace(req.Industry)}
	if profile.Industry == "" && req.UserID != "" {
		stored, ok := s.loadProfile(w, r, req.UserID)
		if !ok {
			return
		}
		profile = stored
	}

	opts := autopilot.Options{
		Weeks:        req.Weeks,
		PostsPerWeek: req.PostsPerWeek,
		PostsPerDay:  req.PostsPerDay,
	}
	for _, p := range req.Platforms {
		opts.Platforms = append(opts.Platforms, core.ParsePlatform(p))
	}
	if req.Start != "" {
		start, err := time.ParseInLocation("2006-01-02", req.Start, s.location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "start must be YYYY-MM-DD")
			return
		}
		opts.Start = start
	}

	preview, err := s.orchestrator.Preview(profile, opts)
	if err != nil {
		var cfgErr *autopilot.ConfigError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusBadRequest, "invalid_input", cfgErr.Error())
			return
		}
		s.logger.Error("schedule preview", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to build preview")
		return
	}
	writeJSON(w, http.StatusOK, preview)
}
