package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"postpilot/internal/core"
	"postpilot/internal/store"
)

type profilePayload struct {
	BusinessName       string   `json:"business_name"`
	Industry           string   `json:"industry"`
	Description        string   `json:"description,omitempty"`
	Products           []string `json:"products,omitempty"`
	TargetAudience     string   `json:"target_audience,omitempty"`
	BrandTone          string   `json:"brand_tone,omitempty"`
	BrandStyle         string   `json:"brand_style,omitempty"`
	Website            string   `json:"website,omitempty"`
	Phone              string   `json:"phone,omitempty"`
	Email              string   `json:"email,omitempty"`
	PreferredPlatforms []string `json:"preferred_platforms,omitempty"`
	UpdatedAt          string   `json:"updated_at,omitempty"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.loadProfile(w, r, chi.URLParam(r, "userID"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, profileToPayload(profile))
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var req profilePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.BusinessName = strings.TrimSpace(req.BusinessName)
	req.Industry = strings.TrimSpace(req.Industry)
	if req.BusinessName == "" || req.Industry == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "business_name and industry are required")
		return
	}
	profile := &core.BusinessProfile{
		UserID:         chi.URLParam(r, "userID"),
		BusinessName:   req.BusinessName,
		Industry:       req.Industry,
		Description:    req.Description,
		Products:       req.Products,
		TargetAudience: req.TargetAudience,
		BrandVoice:     core.BrandVoice{Tone: req.BrandTone, Style: req.BrandStyle},
		Website:        req.Website,
		Phone:          req.Phone,
		Email:          req.Email,
	}
	for _, p := range req.PreferredPlatforms {
		if platform := core.ParsePlatform(p); platform != "" {
			profile.PreferredPlatforms = append(profile.PreferredPlatforms, platform)
		}
	}
	if err := s.store.UpsertProfile(r.Context(), profile); err != nil {
		s.logger.Error("upsert profile", "user_id", profile.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save profile")
		return
	}
	writeJSON(w, http.StatusOK, profileToPayload(profile))
}

func (s *Server) loadProfile(w http.ResponseWriter, r *http.Request, userID string) (*core.BusinessProfile, bool) {
	profile, err := s.store.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "profile not found")
		} else {
			s.logger.Error("get profile", "user_id", userID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load profile")
		}
		return nil, false
	}
	return profile, true
}

func profileToPayload(p *core.BusinessProfile) profilePayload {
	platforms := make([]string, 0, len(p.PreferredPlatforms))
	for _, pl := range p.PreferredPlatforms {
		platforms = append(platforms, string(pl))
	}
	return profilePayload{
		BusinessName:       p.BusinessName,
		Industry:           p.Industry,
		Description:        p.Description,
		Products:           p.Products,
		TargetAudience:     p.TargetAudience,
		BrandTone:          p.BrandVoice.Tone,
		BrandStyle:         p.BrandVoice.Style,
		Website:            p.Website,
		Phone:              p.Phone,
		Email:              p.Email,
		PreferredPlatforms: platforms,
		UpdatedAt:          p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
