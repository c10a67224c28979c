package testhelpers

import (
	"io"
	"log/slog"
	"time"

	"github.com/myrjola/turingtrial/internal/logging"
)

// NewLogger creates a new logger with the given log sink such as io.Discard.
func NewLogger(logSink io.Writer) *slog.Logger {
	return logging.NewLogger(logSink, slog.LevelDebug)
}

const (
	// WaitTimeout bounds how long tests wait for asynchronous results.
	WaitTimeout = 2 * time.Second
	// PollInterval is the polling period used with require.Eventually.
	PollInterval = 5 * time.Millisecond
)
