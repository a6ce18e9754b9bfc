// Package logger provides a structured logging facility based on Zap.
//
// The console logger follows the configured level and encoding. When a log
// file is configured every entry, debug included, is also written as JSON to
// a lumberjack-rotated file, so state transitions are persisted whatever the
// console verbosity.
//
// # Context Awareness
//
// WithService tags entries with the remote service they concern. WithRayID
// extracts the RayID from a Fiber context so all logs of one control API
// request can be correlated.
//
// # Usage
//
//	log, _ := logger.New(&cfg.Log)
//	log.Info("Agent started")
//
//	l := logger.WithService(log, "primary")
//	l.Debug("MustSync raised")
package logger
