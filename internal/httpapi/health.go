package httpapi

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Health reports UP only when every check passes.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "UP", Components: map[string]string{}}
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			logger(r).Warn("health check failed", "component", c.Name, "error", err)
			resp.Components[c.Name] = "DOWN"
			resp.Status = "DOWN"
			continue
		}
		resp.Components[c.Name] = "UP"
	}

	status := http.StatusOK
	if resp.Status != "UP" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
