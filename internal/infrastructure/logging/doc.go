// Package logging provides structured logging for DoorGuard Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the controller, the provisioning
// web service and the hardware adapters.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for bench work on the console (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("door opened", "sequence", 3)
//	logger.Error("publish failed", "error", err)
//
// # Security
//
// Never log the network secret or broker password. The provisioning
// service logs only the network name and notification target.
package logging
