package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spider-rs/headless-browser/internal/domain/instance"
	"github.com/spider-rs/headless-browser/internal/infrastructure/monitoring"
	"github.com/spider-rs/headless-browser/internal/infrastructure/tracing"
	"go.uber.org/zap"
)

// Response bodies of the control surface
const (
	bodyHealthy     = "healthy"
	bodyUnhealthy   = "unhealthy"
	bodyForked      = "Forked process with pid: "
	bodyInvalidPort = "Invalid port argument"
	bodyShutdown    = "Shutdown successful."
	bodyNotFound    = "Not Found"
)

// Orchestrator launches and stops browsers
type Orchestrator interface {
	Fork(port *uint32) (uint32, error)
	ShutdownAll() int
}

// VersionSource produces /json/version bodies
type VersionSource interface {
	Body(ctx context.Context, endpoint string) ([]byte, bool)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	orchestrator Orchestrator
	registry     *instance.Registry
	version      VersionSource
	metrics      *monitoring.Metrics
	logger       *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(
	orchestrator Orchestrator,
	registry *instance.Registry,
	version VersionSource,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		orchestrator: orchestrator,
		registry:     registry,
		version:      version,
		metrics:      metrics,
		logger:       logger,
	}
}

// Register mounts the control surface on router
func (h *Handlers) Register(router gin.IRoutes) {
	router.GET("/", h.Health)
	router.GET("/health", h.Health)
	router.POST("/fork", h.Fork)
	router.POST("/fork/:port", h.ForkPort)
	router.GET("/json/version", h.JSONVersion)
	router.POST("/shutdown", h.Shutdown)
	router.GET("/status", h.Status)
}

// Health reports the last observed upstream health
func (h *Handlers) Health(c *gin.Context) {
	if h.registry.Healthy() {
		c.String(http.StatusOK, bodyHealthy)
		return
	}
	c.String(http.StatusServiceUnavailable, bodyUnhealthy)
}

// Fork launches a browser on the default port
func (h *Handlers) Fork(c *gin.Context) {
	h.fork(c, nil)
}

// ForkPort launches a browser on the port in the path
func (h *Handlers) ForkPort(c *gin.Context) {
	port, ok := parsePort(c.Param("port"))
	if !ok {
		c.String(http.StatusBadRequest, bodyInvalidPort)
		return
	}
	h.fork(c, &port)
}

func (h *Handlers) fork(c *gin.Context, port *uint32) {
	pid, err := h.orchestrator.Fork(port)
	if err != nil {
		h.logger.Error("fork failed", append(traceFields(c), zap.Error(err))...)
		c.Error(err)
		c.String(http.StatusInternalServerError, bodyForked+"0")
		return
	}
	h.logger.Info("fork requested", append(traceFields(c), zap.Uint32("pid", pid))...)
	c.String(http.StatusOK, bodyForked+strconv.FormatUint(uint64(pid), 10))
}

// JSONVersion serves the browser metadata, or the placeholder with a 500
// when no browser answered
func (h *Handlers) JSONVersion(c *gin.Context) {
	body, ok := h.version.Body(c.Request.Context(), "")

	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}
	c.Data(status, "application/json", body)
}

// Shutdown terminates every tracked browser
func (h *Handlers) Shutdown(c *gin.Context) {
	count := h.orchestrator.ShutdownAll()
	h.logger.Info("shutdown requested", append(traceFields(c), zap.Int("terminated", count))...)
	c.String(http.StatusOK, bodyShutdown)
}

// NotFound answers unknown routes. An empty fork port is reported as an
// invalid argument rather than a missing route.
func (h *Handlers) NotFound(c *gin.Context) {
	if c.Request.Method == http.MethodPost && c.Request.URL.Path == "/fork/" {
		c.String(http.StatusBadRequest, bodyInvalidPort)
		return
	}
	c.String(http.StatusNotFound, bodyNotFound)
}

// parsePort accepts decimal TCP ports
func parsePort(s string) (uint32, bool) {
	s = strings.TrimSpace(s)
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil || port == 0 {
		return 0, false
	}
	return uint32(port), true
}

// traceFields ties a log line to the request span set by the tracing middleware
func traceFields(c *gin.Context) []zap.Field {
	ctx := c.Request.Context()
	return []zap.Field{
		zap.String("trace_id", string(tracing.GetTraceID(ctx))),
		zap.String("span_id", string(tracing.GetSpanID(ctx))),
	}
}
