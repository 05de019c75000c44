package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// CheckFunc probes one dependency. A nil error means the dependency is
// reachable and serving.
type CheckFunc func(ctx context.Context) error

// HealthHandler serves liveness and readiness probes. Probes bypass the
// response envelope so orchestrators can parse them without unwrapping.
type HealthHandler struct {
	version string
	started time.Time
	checks  map[string]CheckFunc
	logger  *zap.Logger
}

// HealthResponse is the readiness probe body.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]HealthCheck `json:"checks,omitempty"`
}

// HealthCheck is the outcome of a single dependency probe.
type HealthCheck struct {
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// NewHealthHandler builds the probe endpoints. The checks map may be nil
// for services with no probed dependencies.
func NewHealthHandler(version string, checks map[string]CheckFunc, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		version: version,
		started: time.Now(),
		checks:  checks,
		logger:  logger.Named("HealthHandler"),
	}
}

// Health handles GET /health. It runs every registered check and reports
// 503 when any dependency fails.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	}
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]HealthCheck, len(h.checks))
	}

	status := http.StatusOK
	for name, check := range h.checks {
		start := time.Now()
		err := check(ctx)
		result := HealthCheck{
			Status:   statusHealthy,
			Duration: time.Since(start).String(),
		}
		if err != nil {
			result.Status = statusUnhealthy
			result.Error = err.Error()
			resp.Status = statusUnhealthy
			status = http.StatusServiceUnavailable
			h.logger.Warn("health check failed",
				zap.String("check", name),
				zap.Error(err),
			)
		}
		resp.Checks[name] = result
	}

	h.writeJSON(w, status, resp)
}

// Liveness handles GET /health/live. It only proves the process is
// serving, so it never touches dependencies.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":    statusHealthy,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode health response", zap.Error(err))
	}
}
