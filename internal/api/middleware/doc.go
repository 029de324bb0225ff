// Package middleware provides the Gin middleware in front of the API.
//
//   - CORS: permissive for the editor UI by default; credentials only with
//     an explicit origin list
//   - RateLimit: per-IP token bucket, idle clients evicted after ten minutes
//   - GlobalRateLimit: one bucket for every client
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
