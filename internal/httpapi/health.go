// internal/httpapi/health.go

package httpapi

import "sync"

// HealthState tracks readiness for the HTTP surface. Liveness is always
// true while the process runs; readiness flips once the pipeline is
// wired and flips back during shutdown.
type HealthState struct {
	mu    sync.RWMutex
	ready bool
}

// NewHealthState starts not ready so orchestration layers wait for the
// service to finish booting.
func NewHealthState() *HealthState {
	return &HealthState{}
}

// SetReady flips the readiness flag.
func (h *HealthState) SetReady(value bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = value
}

// Ready reports the current readiness flag.
func (h *HealthState) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}
