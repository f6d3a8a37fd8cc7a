package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ddevcap/rollfeed/health"
)

// checker is satisfied by *health.Monitor.
type checker interface {
	CheckNow(ctx context.Context) []health.Status
}

type SystemHandler struct {
	deps checker
}

func NewSystemHandler(deps checker) *SystemHandler {
	return &SystemHandler{deps: deps}
}

// HealthLive handles GET /health.
// Returns 200 as long as the process is running. No dependencies are checked.
func (h *SystemHandler) HealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type dependencyStatus struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
}

// HealthReady handles GET /ready.
// Returns 200 when every dependency answered just now, 503 otherwise. Check
// errors are logged, never returned.
func (h *SystemHandler) HealthReady(c *gin.Context) {
	statuses := h.deps.CheckNow(c.Request.Context())
	deps := make([]dependencyStatus, 0, len(statuses))
	ready := true
	for _, s := range statuses {
		if !s.OK() {
			ready = false
			slog.Warn("readiness check failed", "dependency", s.Name, "error", s.LastError)
		}
		deps = append(deps, dependencyStatus{Name: s.Name, OK: s.OK()})
	}
	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "dependencies": deps})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "dependencies": deps})
}

// Metrics handles GET /metrics in the Prometheus exposition format.
func (h *SystemHandler) Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
