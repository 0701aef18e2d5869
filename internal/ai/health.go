package ai

import (
	"sync"
	"time"
)

// DefaultCooldown is how long a recorded working provider stays preferred.
const DefaultCooldown = 5 * time.Minute

// HealthState remembers the last provider that produced usable output.
// One instance is owned by each gateway; nothing here is package-global.
type HealthState struct {
	mu          sync.Mutex
	cooldown    time.Duration
	now         func() time.Time
	working     string
	recordedAt  time.Time
	lastFailure time.Time
	lastError   string
	lastFailed  string
}

// HealthSnapshot is a read-only copy of a HealthState.
type HealthSnapshot struct {
	WorkingProvider string     `json:"working_provider,omitempty"`
	RecordedAt      *time.Time `json:"recorded_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	LastFailedName  string     `json:"last_failed_provider,omitempty"`
	LastFailureAt   *time.Time `json:"last_failure_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// NewHealthState returns an empty state. A non-positive cooldown uses DefaultCooldown.
func NewHealthState(cooldown time.Duration) *HealthState {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &HealthState{cooldown: cooldown, now: time.Now}
}

// Working returns the cached provider if it has not expired.
func (h *HealthState) Working() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.working == "" {
		return "", false
	}
	if h.now().Sub(h.recordedAt) >= h.cooldown {
		h.working = ""
		return "", false
	}
	return h.working, true
}

// RecordSuccess marks name as the working provider.
func (h *HealthState) RecordSuccess(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.working = name
	h.recordedAt = h.now()
}

// RecordFailure notes a failure and clears the working provider if it was name.
func (h *HealthState) RecordFailure(name string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastFailure = h.now()
	h.lastFailed = name
	if err != nil {
		h.lastError = err.Error()
	}
	if h.working == name {
		h.working = ""
	}
}

// Reset forgets everything.
func (h *HealthState) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.working = ""
	h.recordedAt = time.Time{}
	h.lastFailure = time.Time{}
	h.lastFailed = ""
	h.lastError = ""
}

func (h *HealthState) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	var snap HealthSnapshot
	if h.working != "" && h.now().Sub(h.recordedAt) < h.cooldown {
		recorded := h.recordedAt.UTC()
		expires := recorded.Add(h.cooldown)
		snap.WorkingProvider = h.working
		snap.RecordedAt = &recorded
		snap.ExpiresAt = &expires
	}
	if !h.lastFailure.IsZero() {
		failed := h.lastFailure.UTC()
		snap.LastFailureAt = &failed
		snap.LastFailedName = h.lastFailed
		snap.LastError = h.lastError
	}
	return snap
}
