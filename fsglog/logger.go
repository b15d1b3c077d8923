// Package fsglog declares the logging capability the engine consumes:
// info/warn/error on any value, including plain strings. pkg/logger
// satisfies Logger directly; Nop is available for tests and for
// engines constructed without an injected logger.
package fsglog

import "github.com/gofhir/snapgen/pkg/logger"

// Logger is the capability set every engine component depends on.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Default returns the package-level default logger.
func Default() Logger {
	return logger.Default()
}

// nopLogger discards everything. Useful where no logger was configured and
// silent operation is preferred over a panic on a nil interface.
type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop is a Logger that discards all messages.
var Nop Logger = nopLogger{}
