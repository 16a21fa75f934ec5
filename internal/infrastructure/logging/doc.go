// Package logging provides structured logging for Gray Logic Stage.
//
// This package wraps Go's standard log/slog package so every component of
// the stage service logs with the same fields and format.
//
// # Features
//
//   - JSON output for show machines (machine-parsable)
//   - Text output for rehearsal and development
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("playback").Info("queue started", "size", 1024)
//
// Resolution misses are logged at warn level by the stage engine; per-frame
// detail such as unknown transform units stays at debug.
package logging
