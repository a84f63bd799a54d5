// Package middleware provides the HTTP middleware for the control surface.
//
//   - CORS: Cross-origin resource sharing, trace headers exposed
//   - RateLimit: Per-IP token bucket, idle clients evicted through go-cache
//   - GlobalRateLimit: One token bucket shared by every client
//
// Liveness paths listed in RateLimitConfig.Skip bypass both limiters so
// orchestrator health checks keep working under load.
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
