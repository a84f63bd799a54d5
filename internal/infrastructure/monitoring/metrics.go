package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Instance metrics
	Instances prometheus.Gauge
	Forks     *prometheus.CounterVec
	Shutdowns prometheus.Counter

	// Connector metrics
	ConnectAttempts *prometheus.CounterVec

	// Version metrics
	VersionCache    *prometheus.CounterVec
	VersionRequests *prometheus.CounterVec

	// Proxy metrics
	ProxySessionsActive prometheus.Gauge
	ProxySessionsTotal  *prometheus.CounterVec
	ProxyBytes          *prometheus.CounterVec
	ProxyRewrites       prometheus.Counter

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON status output
type Snapshot struct {
	TotalRequests  int64
	TotalErrors    int64
	ActiveSessions int64
	TotalSessions  int64
}

// NewMetrics creates a metrics collector with its own registry, so several
// collectors can coexist in one process (tests build one per server).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headless_http_requests_total",
				Help: "Total number of control surface requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "headless_http_request_duration_seconds",
				Help:    "Control surface request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),

		Instances: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "headless_instances",
				Help: "Number of tracked browser processes",
			},
		),
		Forks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headless_forks_total",
				Help: "Browser spawn attempts",
			},
			[]string{"status"},
		),
		Shutdowns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "headless_shutdowns_total",
				Help: "Shutdown-all operations",
			},
		),

		ConnectAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headless_connect_attempts_total",
				Help: "Upstream dial attempts by outcome",
			},
			[]string{"outcome"},
		),

		VersionCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headless_version_cache_total",
				Help: "Version cache lookups by result",
			},
			[]string{"result"},
		),
		VersionRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headless_version_requests_total",
				Help: "Served /json/version bodies by outcome",
			},
			[]string{"outcome"},
		),

		ProxySessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "headless_proxy_sessions_active",
				Help: "Open proxy sessions",
			},
		),
		ProxySessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headless_proxy_sessions_total",
				Help: "Proxy sessions by outcome",
			},
			[]string{"outcome"},
		),
		ProxyBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headless_proxy_bytes_total",
				Help: "Bytes relayed by the proxy",
			},
			[]string{"direction"},
		),
		ProxyRewrites: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "headless_proxy_port_rewrites_total",
				Help: "Port tokens rewritten in browser to client traffic",
			},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "headless_uptime_seconds",
			Help: "Sidecar uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records a control surface request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// SetInstances sets the number of tracked browser processes
func (m *Metrics) SetInstances(count int) {
	m.Instances.Set(float64(count))
}

// RecordFork records a spawn attempt
func (m *Metrics) RecordFork(success bool) {
	if success {
		m.Forks.WithLabelValues("success").Inc()
		return
	}
	m.Forks.WithLabelValues("failure").Inc()
}

// RecordShutdown records a shutdown-all
func (m *Metrics) RecordShutdown() {
	m.Shutdowns.Inc()
}

// RecordConnectAttempt records one dial attempt ("connected", "refused", "error", "timeout")
func (m *Metrics) RecordConnectAttempt(outcome string) {
	m.ConnectAttempts.WithLabelValues(outcome).Inc()
}

// RecordCache records a version cache lookup ("hit", "miss", "store", "bypass")
func (m *Metrics) RecordCache(result string) {
	m.VersionCache.WithLabelValues(result).Inc()
}

// RecordVersion records a served /json/version ("ok", "placeholder")
func (m *Metrics) RecordVersion(outcome string) {
	m.VersionRequests.WithLabelValues(outcome).Inc()
}

// SessionOpened tracks a new proxy session
func (m *Metrics) SessionOpened() {
	m.ProxySessionsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveSessions++
	m.snapshot.TotalSessions++
	m.mu.Unlock()
}

// SessionClosed tracks the end of a proxy session ("closed", "dial_failed")
func (m *Metrics) SessionClosed(outcome string) {
	m.ProxySessionsActive.Dec()
	m.ProxySessionsTotal.WithLabelValues(outcome).Inc()
	m.mu.Lock()
	m.snapshot.ActiveSessions--
	m.mu.Unlock()
}

// AddProxyBytes adds relayed bytes for a direction ("upstream", "downstream")
func (m *Metrics) AddProxyBytes(direction string, n int) {
	m.ProxyBytes.WithLabelValues(direction).Add(float64(n))
}

// AddRewrites counts rewritten port tokens
func (m *Metrics) AddRewrites(n int) {
	m.ProxyRewrites.Add(float64(n))
}

// Snapshot returns a copy of the current counters
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// UptimeSeconds returns the time since the collector was created
func (m *Metrics) UptimeSeconds() float64 {
	return time.Since(m.startTime).Seconds()
}
