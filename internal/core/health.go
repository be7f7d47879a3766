package core

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthTracker tracks the outcome of polling cycles for the monitor's
// health endpoint.
type HealthTracker struct {
	staleAfter time.Duration

	mu          sync.RWMutex
	lastSuccess time.Time
	lastFailure time.Time
	failures    int
}

// HealthStatus is the JSON body served by the health endpoint.
type HealthStatus struct {
	Status       string    `json:"status"` // "healthy", "degraded", "unhealthy"
	LastSuccess  time.Time `json:"last_success,omitzero"`
	LastFailure  time.Time `json:"last_failure,omitzero"`
	FailureCount int       `json:"failure_count"`
}

// NewHealthTracker creates a tracker. A cycle older than staleAfter marks
// the monitor unhealthy even without an explicit failure.
func NewHealthTracker(staleAfter time.Duration) *HealthTracker {
	return &HealthTracker{staleAfter: staleAfter}
}

// RecordSuccess marks a completed polling cycle.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSuccess = time.Now()
	h.failures = 0
}

// RecordFailure marks a failed polling cycle.
func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastFailure = time.Now()
	h.failures++
}

// Status derives the current health from the recorded cycle outcomes.
func (h *HealthTracker) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := HealthStatus{
		LastSuccess:  h.lastSuccess,
		LastFailure:  h.lastFailure,
		FailureCount: h.failures,
	}

	switch {
	case h.lastSuccess.IsZero() && h.failures == 0:
		// Nothing has run yet.
		status.Status = "healthy"
	case h.lastSuccess.IsZero(), time.Since(h.lastSuccess) > h.staleAfter:
		status.Status = "unhealthy"
	case h.failures > 0:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}
	return status
}

// ServeHealth provides an HTTP handler for health checks.
func (h *HealthTracker) ServeHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := h.Status()

		w.Header().Set("Content-Type", "application/json")
		if status.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(status)
	})
}
