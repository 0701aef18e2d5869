package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"postpilot/internal/autopilot"
	"postpilot/internal/core"
	"postpilot/internal/store"
)

type createPlanRequest struct {
	UserID        string   `json:"user_id"`
	Name          *string  `json:"name"`
	Weeks         int      `json:"weeks"`
	PostsPerWeek  int      `json:"posts_per_week"`
	PostsPerDay   int      `json:"posts_per_day"`
	Platforms     []string `json:"platforms"`
	IncludeImages bool     `json:"include_images"`
	Cron          string   `json:"cron"`
	Paused        bool     `json:"paused"`
}

type updatePlanRequest struct {
	Name          *string   `json:"name"`
	Weeks         *int      `json:"weeks"`
	PostsPerWeek  *int      `json:"posts_per_week"`
	PostsPerDay   *int      `json:"posts_per_day"`
	Platforms     *[]string `json:"platforms"`
	IncludeImages *bool     `json:"include_images"`
	Cron          *string   `json:"cron"`
	Paused        *bool     `json:"paused"`
}

type runPlanRequest struct {
	Media []mediaRequest `json:"media"`
}

type mediaRequest struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

type planResponse struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id"`
	Name          *string  `json:"name,omitempty"`
	Weeks         int      `json:"weeks"`
	PostsPerWeek  int      `json:"posts_per_week,omitempty"`
	PostsPerDay   int      `json:"posts_per_day,omitempty"`
	Platforms     []string `json:"platforms"`
	IncludeImages bool     `json:"include_images"`
	Cron          string   `json:"cron"`
	Status        string   `json:"status"`
	Running       bool     `json:"running"`
	LastRunAt     *string  `json:"last_run_at,omitempty"`
	NextRunAt     *string  `json:"next_run_at,omitempty"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	plan, err := autopilot.NewPlan(req.UserID, autopilot.PlanSpec{
		Name:          req.Name,
		Weeks:         req.Weeks,
		PostsPerWeek:  req.PostsPerWeek,
		PostsPerDay:   req.PostsPerDay,
		Platforms:     req.Platforms,
		IncludeImages: req.IncludeImages,
		Cron:          req.Cron,
		Paused:        req.Paused,
	}, time.Now(), s.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	if err := s.store.InsertPlan(r.Context(), plan); err != nil {
		s.logger.Error("insert plan", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to insert plan")
		return
	}
	if plan.Status == core.PlanStatusActive {
		if err := s.scheduler.AddOrUpdatePlan(r.Context(), plan); err != nil {
			s.logger.Error("schedule plan", "plan_id", plan.ID, "err", err)
		}
	}
	writeJSON(w, http.StatusCreated, s.planToResponse(plan))
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	var statusFilter *core.PlanStatus
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		st := core.PlanStatus(status)
		switch st {
		case core.PlanStatusActive, core.PlanStatusPaused:
			statusFilter = &st
		default:
			writeError(w, http.StatusBadRequest, "invalid_input", "status must be active or paused")
			return
		}
	}
	plans, err := s.store.ListPlans(r.Context(), strings.TrimSpace(r.URL.Query().Get("user_id")), statusFilter)
	if err != nil {
		s.logger.Error("list plans", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list plans")
		return
	}
	res := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		res = append(res, s.planToResponse(p))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.loadPlan(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.planToResponse(plan))
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.loadPlan(w, r)
	if !ok {
		return
	}
	var req updatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	err := autopilot.ApplyPlanPatch(plan, autopilot.PlanPatch{
		Name:          req.Name,
		Weeks:         req.Weeks,
		PostsPerWeek:  req.PostsPerWeek,
		PostsPerDay:   req.PostsPerDay,
		Platforms:     req.Platforms,
		IncludeImages: req.IncludeImages,
		Cron:          req.Cron,
		Paused:        req.Paused,
	}, time.Now(), s.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	if err := s.store.UpdatePlan(r.Context(), plan); err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "plan not found")
			return
		}
		s.logger.Error("update plan", "plan_id", plan.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update plan")
		return
	}
	if err := s.scheduler.AddOrUpdatePlan(r.Context(), plan); err != nil {
		s.logger.Error("reschedule plan", "plan_id", plan.ID, "err", err)
	}
	writeJSON(w, http.StatusOK, s.planToResponse(plan))
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	if err := s.store.DeletePlan(r.Context(), planID); err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "plan not found")
		} else {
			s.logger.Error("delete plan", "plan_id", planID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete plan")
		}
		return
	}
	s.scheduler.RemovePlan(planID)
	w.WriteHeader(http.StatusNoContent)
}

// handleRunPlan starts a generation now. An optional body supplies media
// that is captioned before AI ideas are requested.
func (s *Server) handleRunPlan(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.loadPlan(w, r)
	if !ok {
		return
	}
	var req runPlanRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
	}
	media := make([]core.MediaAsset, 0, len(req.Media))
	for _, m := range req.Media {
		if strings.TrimSpace(m.URL) == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "media url is required")
			return
		}
		media = append(media, core.MediaAsset{ID: core.NewID(), URL: m.URL, Filename: m.Filename, Description: m.Description})
	}

	run, err := s.scheduler.RunNow(r.Context(), plan, media...)
	if err != nil {
		if errors.Is(err, autopilot.ErrPlanRunning) {
			writeError(w, http.StatusConflict, "conflict", "plan is already running")
			return
		}
		s.logger.Error("run plan now", "plan_id", plan.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start plan")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.loadPlan(w, r)
	if !ok {
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	runs, err := s.store.ListRuns(r.Context(), plan.ID, limit, offset)
	if err != nil {
		s.logger.Error("list runs", "plan_id", plan.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list runs")
		return
	}
	resp := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, runToResponse(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) loadPlan(w http.ResponseWriter, r *http.Request) (*core.AutopilotPlan, bool) {
	planID := chi.URLParam(r, "planID")
	plan, err := s.store.GetPlan(r.Context(), planID)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "plan not found")
		} else {
			s.logger.Error("get plan", "plan_id", planID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load plan")
		}
		return nil, false
	}
	return plan, true
}

func (s *Server) planToResponse(plan *core.AutopilotPlan) planResponse {
	platforms := make([]string, 0, len(plan.Platforms))
	for _, p := range plan.Platforms {
		platforms = append(platforms, string(p))
	}
	return planResponse{
		ID:            plan.ID,
		UserID:        plan.UserID,
		Name:          plan.Name,
		Weeks:         plan.Weeks,
		PostsPerWeek:  plan.PostsPerWeek,
		PostsPerDay:   plan.PostsPerDay,
		Platforms:     platforms,
		IncludeImages: plan.IncludeImages,
		Cron:          plan.Cron,
		Status:        string(plan.Status),
		Running:       s.scheduler.IsRunning(plan.ID),
		LastRunAt:     formatTimePtr(plan.LastRunAt),
		NextRunAt:     formatTimePtr(plan.NextRunAt),
		CreatedAt:     plan.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     plan.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
