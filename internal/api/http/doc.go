// Package http provides the REST surface of the backend using Gin.
//
// Endpoints:
//   - Health: /, /health, /metrics/json
//   - Profiles: /profiles, /profiles/:id, /profiles/:id/fingerprint, /presets
//   - Sessions: /sessions, /sessions/scratch, /sessions/:id, /sessions/:id/pages
//   - Proxies: /proxies, /proxies/check, /proxies/:id/check
//   - Workflows: /workflows, /workflows/validate, /workflows/connect,
//     /workflows/:id/assign, /workflows/:id/execute
//   - Runs: /executions/:id, /jobs/:id
//
// Domain errors map to status codes: validation 400, not found 404,
// everything else 500. Error bodies are {"success": false, "error": msg},
// plus "issues" when a workflow failed validation.
//
// Example Usage:
//
//	handlers := http.NewHandlers(svc, metrics, logger, false)
//	handlers.Register(router)
package http
