package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"medstock/internal/infrastructure/http/v1/dto"
)

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks []HealthCheck
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, dto.StatusResponse{Status: "ok"})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	resp := dto.StatusResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK

	for _, chk := range h.checks {
		if err := chk.Check(c.Request.Context()); err != nil {
			resp.Status = "error"
			resp.Checks[chk.Name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[chk.Name] = "healthy"
	}

	c.JSON(status, resp)
}
