package api

import (
	"net/http"
	"sort"
)

type providerStatus struct {
	Name   string `json:"name"`
	Health any    `json:"health"`
}

func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	resp := make([]providerStatus, 0, len(names))
	for _, name := range names {
		resp = append(resp, providerStatus{Name: name, Health: s.providers[name].Health()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleProviderReset forgets the cached working providers so the next
// request walks the full priority order again.
func (s *Server) handleProviderReset(w http.ResponseWriter, r *http.Request) {
	for name, p := range s.providers {
		p.Reset()
		s.logger.Info("provider health reset", "gateway", name)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePublisherTick(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "publisher is disabled")
		return
	}
	report, err := s.publisher.Tick(r.Context())
	if err != nil {
		s.logger.Error("manual publisher tick", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "publisher tick failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
