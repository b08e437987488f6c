// Package logging provides the structured logger used across the
// storage core and the cmd/sqldb CLI, built on go.uber.org/zap so
// engine and transaction events carry structured fields (offsets,
// versions, key counts) instead of formatted strings.
package logging

import "go.uber.org/zap"

// New builds a production zap.Logger: JSON encoding, info level,
// caller annotations, and stacktraces on error level and above.
func New() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		// zap.NewProduction only fails on a broken encoder/sink
		// configuration, which cannot happen with the defaults used
		// here; fall back to a logger that is never nil.
		return zap.NewNop()
	}
	return logger
}

// NewDevelopment builds a human-readable zap.Logger suitable for the
// interactive cmd/sqldb REPL.
func NewDevelopment() *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// Nop returns a logger that discards everything, used by package
// constructors (e.g. storage.NewDiskEngine) that accept an optional
// *zap.Logger and must never operate on a nil one.
func Nop() *zap.Logger {
	return zap.NewNop()
}
