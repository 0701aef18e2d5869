package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"postpilot/internal/autopilot"
	"postpilot/internal/core"
	"postpilot/internal/store"
)

type runResponse struct {
	ID             string  `json:"id"`
	PlanID         string  `json:"plan_id"`
	UserID         string  `json:"user_id"`
	Status         string  `json:"status"`
	Progress       int     `json:"progress"`
	Stage          string  `json:"stage,omitempty"`
	IdeasRequested int     `json:"ideas_requested"`
	PostsComposed  int     `json:"posts_composed"`
	PostsScheduled int     `json:"posts_scheduled"`
	ScheduledAt    string  `json:"scheduled_at"`
	StartedAt      *string `json:"started_at,omitempty"`
	EndedAt        *string `json:"ended_at,omitempty"`
	Error          *string `json:"error,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "run not found")
		} else {
			s.logger.Error("get run", "run_id", runID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load run")
		}
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run))
}

// handleCancelRun stops an in-flight generation. Posts composed before the
// cancel are still scheduled.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "run not found")
		} else {
			s.logger.Error("get run for cancel", "run_id", runID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load run")
		}
		return
	}
	if run.Finished() {
		writeError(w, http.StatusConflict, "conflict", "run already finished")
		return
	}
	if err := s.scheduler.CancelRun(runID); err != nil {
		if errors.Is(err, autopilot.ErrRunNotActive) {
			writeError(w, http.StatusConflict, "conflict", "run is not active")
			return
		}
		s.logger.Error("cancel run", "run_id", runID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to cancel run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "canceling"})
}

func runToResponse(run *core.AutopilotRun) runResponse {
	return runResponse{
		ID:             run.ID,
		PlanID:         run.PlanID,
		UserID:         run.UserID,
		Status:         string(run.Status),
		Progress:       run.Progress,
		Stage:          run.Stage,
		IdeasRequested: run.IdeasRequested,
		PostsComposed:  run.PostsComposed,
		PostsScheduled: run.PostsScheduled,
		ScheduledAt:    run.ScheduledAt.UTC().Format(time.RFC3339),
		StartedAt:      formatTimePtr(run.StartedAt),
		EndedAt:        formatTimePtr(run.EndedAt),
		Error:          run.Error,
		CreatedAt:      run.CreatedAt.UTC().Format(time.RFC3339),
	}
}
