/*
Package monitoring provides Prometheus metrics for the sidecar.

# Overview

Every Metrics value owns a private registry, exposed through Handler, so the
control surface can serve /metrics without touching the global registry.

# Metrics

- headless_http_*: control surface requests by route template and status
- headless_instances, headless_forks_total, headless_shutdowns_total
- headless_connect_attempts_total: upstream dial attempts by outcome
- headless_version_cache_total, headless_version_requests_total
- headless_proxy_sessions_*, headless_proxy_bytes_total,
  headless_proxy_port_rewrites_total
- headless_uptime_seconds

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
