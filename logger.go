package oraq

import "github.com/oraq-io/oraq/internal/log"

// Logger supports logging at various log levels. A caller may supply
// one via Config.Logger; the package default writes level-prefixed,
// UTC-timestamped lines to stderr. Its method set matches
// internal/log.Base exactly, so any Logger value is usable wherever
// internal packages expect one -- no adapter required.
type Logger interface {
	// Debug logs a message at Debug level.
	Debug(args ...interface{})

	// Info logs a message at Info level.
	Info(args ...interface{})

	// Warn logs a message at Warning level.
	Warn(args ...interface{})

	// Error logs a message at Error level.
	Error(args ...interface{})

	// Fatal logs a message at Fatal level and the process exits with
	// status 1.
	Fatal(args ...interface{})
}

var _ log.Base = Logger(nil)
