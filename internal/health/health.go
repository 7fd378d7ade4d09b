// Package health provides a small named-checker registry with liveness and
// readiness HTTP endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// checkResult is one dependency's probe outcome in the readiness response.
type checkResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const checkTimeout = 5 * time.Second

// Manager holds the registered checkers.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]CheckFunc
	logger   *zap.Logger
}

// NewManager creates an empty checker registry.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		checkers: map[string]CheckFunc{},
		logger:   logger,
	}
}

// Register adds a named checker, replacing any previous checker with the
// same name.
func (m *Manager) Register(name string, check CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = check
}

// RegisterRoutes mounts /healthz and /readyz on mux.
func (m *Manager) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", m.handleLiveness)
	mux.HandleFunc("GET /readyz", m.handleReadiness)
}

// handleLiveness reports that the process is up; it never probes
// dependencies.
func (m *Manager) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness runs every registered checker and returns 503 if any
// dependency is unreachable.
func (m *Manager) handleReadiness(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	checkers := make(map[string]CheckFunc, len(m.checkers))
	for name, check := range m.checkers {
		checkers[name] = check
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	results := make(map[string]checkResult, len(checkers))
	ready := true
	for name, check := range checkers {
		if err := check(ctx); err != nil {
			m.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			results[name] = checkResult{Status: "unhealthy", Error: err.Error()}
			ready = false
			continue
		}
		results[name] = checkResult{Status: "healthy"}
	}

	status := http.StatusOK
	overall := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		overall = "not ready"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": results,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
