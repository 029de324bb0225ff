// Package config provides 12-factor configuration management for the fleet backend.
//
// Configuration is loaded from an optional .env file, then environment
// variables, with defaults for everything except secrets.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Browser: Profile directory root, engine order, remote worker
//   - Proxy: Health probe URL, timeout and bulk check limits
//   - Workers: Execution pool size and optional Redis queue
//   - Storage: Snapshot file, screenshots dir, credential key
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
package config
