// Package logging provides structured logging using uber/zap.
//
// Two modes are available:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output with stack traces
//
// Components log with a named child logger and structured fields such as
// profile_id, session_id, execution_id and engine.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	log := logger.Component("session")
//	log.Info("Session launched", zap.Int("profile_id", 7), zap.String("engine", "rod"))
package logging
