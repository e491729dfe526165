// Package middleware provides the gin middleware of the game host API.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing for the configured origins
//   - RateLimit: Per-IP token bucket rate limiting
//   - RequestID: X-Request-ID propagation
//   - AccessLog: One structured log line per request
//
// CORS Configuration:
//   - AllowOrigins: Permitted origins; "*" allows all and disables credentials
//   - AllowMethods: HTTP methods (GET, POST, etc.)
//   - ExposeHeaders: Content-Disposition for exported games
//   - MaxAge: Preflight cache duration
//
// Rate Limiting:
//   - Per-IP tracking; limiters idle longer than IdleTTL are dropped
//   - Token bucket algorithm (golang.org/x/time/rate)
//   - Global rate limiting option
//
// Example Usage:
//
//	router.Use(middleware.RequestID())
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins...)))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
