//go:build linux

package util

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

// journaldWriter forwards slog text records to journald, keeping the
// record level as the journal priority
type journaldWriter struct{}

func (w *journaldWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSuffix(string(p), "\n")
	err := journal.Send(msg, journalPriority(msg), map[string]string{
		"SYSLOG_IDENTIFIER": Name,
	})
	if err != nil {
		return fmt.Fprintf(os.Stderr, "%s", p)
	}
	return len(p), nil
}

func journalPriority(record string) journal.Priority {
	switch {
	case strings.Contains(record, "level=ERROR"):
		return journal.PriErr
	case strings.Contains(record, "level=WARN"):
		return journal.PriWarning
	case strings.Contains(record, "level=DEBUG"):
		return journal.PriDebug
	default:
		return journal.PriInfo
	}
}

var logWriter io.Writer = os.Stderr

// GetLogWriter returns the current log writer (for use by other packages)
func GetLogWriter() io.Writer {
	return logWriter
}

// SetupLogging installs the default slog logger, writing to journald when
// requested and available
func SetupLogging(withJournald bool, level string) {
	if withJournald {
		if !journal.Enabled() {
			installLogger(os.Stderr, level, true)
			slog.Warn("journald not available on this system; using standard logging")
			return
		}
		logWriter = &journaldWriter{}
		// journald adds its own timestamps
		installLogger(logWriter, level, false)
		slog.Info("logging initialized with journald support")
		return
	}
	installLogger(os.Stderr, level, true)
}
