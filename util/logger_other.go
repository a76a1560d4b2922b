//go:build !linux

package util

import (
	"io"
	"log/slog"
	"os"
)

var logWriter io.Writer = os.Stderr

// GetLogWriter returns the current log writer (for use by other packages)
func GetLogWriter() io.Writer {
	return logWriter
}

// SetupLogging installs the default slog logger. Journald is not available
// on this operating system.
func SetupLogging(withJournald bool, level string) {
	installLogger(os.Stderr, level, true)
	if withJournald {
		slog.Warn("journald logging is not supported on this operating system, falling back to stderr")
	}
}
