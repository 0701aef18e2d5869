package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"postpilot/internal/core"
	"postpilot/internal/export"
	"postpilot/internal/store"
)

type postResponse struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	RunID        *string `json:"run_id,omitempty"`
	Content      string  `json:"content"`
	ImageURL     *string `json:"image_url,omitempty"`
	Platform     string  `json:"platform"`
	Category     string  `json:"category"`
	ScheduledFor string  `json:"scheduled_for"`
	Status       string  `json:"status"`
	Attempts     int     `json:"attempts,omitempty"`
	LastError    *string `json:"last_error,omitempty"`
	PublishedAt  *string `json:"published_at,omitempty"`
	RemoteID     *string `json:"remote_id,omitempty"`
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	filter, ok := parsePostFilter(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	posts, err := s.store.ListPostsByUser(r.Context(), userID, filter)
	if err != nil {
		s.logger.Error("list posts", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list posts")
		return
	}
	resp := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, postToResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleClearPosts drops every post of the user that has not gone out yet.
func (s *Server) handleClearPosts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	n, err := s.store.DeleteUnpublished(r.Context(), userID)
	if err != nil {
		s.logger.Error("clear posts", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to clear posts")
		return
	}
	s.logger.Info("cleared unpublished posts", "user_id", userID, "deleted", n)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handlePostSummary(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	counts, err := s.store.CountPostsByStatus(r.Context(), userID)
	if err != nil {
		s.logger.Error("count posts", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to count posts")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleExportCalendar(w http.ResponseWriter, r *http.Request) {
	filter, ok := parsePostFilter(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	posts, err := s.store.ListPostsByUser(r.Context(), userID, filter)
	if err != nil {
		s.logger.Error("list posts for export", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list posts")
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCalendarXLSX(&buf, posts, s.location); err != nil {
		s.logger.Error("export calendar", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="calendar-%s.xlsx"`, time.Now().In(s.location).Format("20060102")))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	post, err := s.store.GetPost(r.Context(), postID)
	if err != nil {
		if errors.Is(err, store.ErrPostNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "post not found")
		} else {
			s.logger.Error("get post", "post_id", postID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load post")
		}
		return
	}
	writeJSON(w, http.StatusOK, postToResponse(post))
}

// parsePostFilter reads from/to (RFC 3339 or YYYY-MM-DD), status, limit and offset.
func parsePostFilter(w http.ResponseWriter, r *http.Request) (store.PostFilter, bool) {
	q := r.URL.Query()
	filter := store.PostFilter{
		Limit:  parseIntDefault(q.Get("limit"), 0),
		Offset: parseIntDefault(q.Get("offset"), 0),
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := strings.TrimSpace(q.Get(bound.name))
		if raw == "" {
			continue
		}
		t, err := parseTimeParam(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", bound.name+" must be RFC 3339 or YYYY-MM-DD")
			return filter, false
		}
		*bound.dst = &t
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := core.PostStatus(raw)
		switch status {
		case core.PostStatusScheduled, core.PostStatusPending, core.PostStatusPublished, core.PostStatusFailed:
			filter.Status = &status
		default:
			writeError(w, http.StatusBadRequest, "invalid_input", "unknown status")
			return filter, false
		}
	}
	return filter, true
}

func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func postToResponse(p *core.ScheduledPost) postResponse {
	return postResponse{
		ID:           p.ID,
		UserID:       p.UserID,
		RunID:        p.RunID,
		Content:      p.Content,
		ImageURL:     p.ImageURL,
		Platform:     string(p.Platform),
		Category:     string(p.Category),
		ScheduledFor: p.ScheduledFor.UTC().Format(time.RFC3339),
		Status:       string(p.Status),
		Attempts:     p.Attempts,
		LastError:    p.LastError,
		PublishedAt:  formatTimePtr(p.PublishedAt),
		RemoteID:     p.RemoteID,
	}
}
