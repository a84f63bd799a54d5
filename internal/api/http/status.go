package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusSnapshot summarizes the sidecar for dashboards
type StatusSnapshot struct {
	Timestamp time.Time     `json:"timestamp"`
	Instances []uint32      `json:"instances"`
	Healthy   bool          `json:"healthy"`
	Cacheable bool          `json:"cacheable"`
	Summary   StatusSummary `json:"summary"`
}

// StatusSummary provides high-level counters
type StatusSummary struct {
	TotalRequests  int64   `json:"total_requests"`
	ErrorRate      float64 `json:"error_rate"`
	ActiveSessions int64   `json:"active_sessions"`
	TotalSessions  int64   `json:"total_sessions"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// Status returns the tracked instances, flags and counters
func (h *Handlers) Status(c *gin.Context) {
	snapshot := StatusSnapshot{
		Timestamp: time.Now(),
		Instances: h.registry.PIDs(),
		Healthy:   h.registry.Healthy(),
		Cacheable: h.registry.Cacheable(),
	}

	if h.metrics != nil {
		m := h.metrics.Snapshot()
		snapshot.Summary = StatusSummary{
			TotalRequests:  m.TotalRequests,
			ActiveSessions: m.ActiveSessions,
			TotalSessions:  m.TotalSessions,
			UptimeSeconds:  h.metrics.UptimeSeconds(),
		}
		if m.TotalRequests > 0 {
			snapshot.Summary.ErrorRate = float64(m.TotalErrors) / float64(m.TotalRequests)
		}
	}

	c.JSON(http.StatusOK, snapshot)
}
