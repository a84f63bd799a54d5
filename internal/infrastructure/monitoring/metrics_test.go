package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndependentRegistries(t *testing.T) {
	// Two collectors in one process must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()

	a.RecordFork(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Forks.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Forks.WithLabelValues("success")))
}

func TestSessionAccounting(t *testing.T) {
	m := NewMetrics()

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed("closed")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProxySessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProxySessionsTotal.WithLabelValues("closed")))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ActiveSessions)
	assert.Equal(t, int64(2), snap.TotalSessions)
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.POST("/fork/:port", func(c *gin.Context) {
		c.String(http.StatusBadRequest, "Invalid port argument")
	})

	for _, port := range []string{"abc", "xyz"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/fork/"+port, nil))
		require.Equal(t, http.StatusBadRequest, w.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "/fork/:port", "400")))
	assert.Equal(t, int64(2), m.Snapshot().TotalErrors)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.AddRewrites(3)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "headless_proxy_port_rewrites_total 3")
	assert.Contains(t, w.Body.String(), "headless_uptime_seconds")
}
