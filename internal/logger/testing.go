package logger

import (
	"io"
	"log/slog"
)

// NewSlogLogger creates a root Logger writing JSON records to w at the given level.
// Intended for tests that inspect log output.
func NewSlogLogger(w io.Writer, level LogLevel) Logger {
	lvl := parseLogLevel(string(level))
	return &moduleLogger{
		logger: slog.New(newJSONHandler(w, lvl, nil)),
		level:  lvl,
	}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return NewSlogLogger(io.Discard, LogLevelError)
}
