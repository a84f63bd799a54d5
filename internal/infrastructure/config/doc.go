// Package config provides 12-factor configuration management for the sidecar.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags in cmd/server override environment variables.
//
// Configuration Sections:
//   - Server: HTTP control surface (port, host)
//   - Chrome: browser binary, debug address/port and launch switches
//   - Proxy: external rewrite proxy (port, buffer size, connection cap)
//   - Version: /json/version hostname rewrite, cache window, debug dump
//   - Logging: Log level and output format
//   - RateLimit: per-IP or global rate limiting
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//	fmt.Printf("control surface on %s, proxy %s -> %s\n",
//		cfg.ServerAddr(), cfg.ProxyListenAddr(), cfg.ProxyTargetAddr())
//
// Environment Variables:
//   - PORT, HOST
//   - CHROME_PATH, CHROME_ADDRESS, DEFAULT_PORT, CHROME_INIT, CHROME_ARGS
//   - HEADLESS, ENABLE_GPU, CHROME_GL, TEST_NO_ARGS, BRAVE_ENABLED, RENDER_PROCESS_LIMIT
//   - PROXY_ENABLED, PROXY_PORT, BUFFER_SIZE, PROXY_MAX_CONNECTIONS
//   - HOSTNAME_OVERRIDE, HOSTNAME, DEBUG_JSON, CACHE_TTL
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED, RATE_LIMIT_SCOPE
package config
