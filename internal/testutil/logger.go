package testutil

import (
	"fmt"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/sas-client/internal/logging"
)

// NewTestLogger creates a test logger that discards output.
// Use NewTestLoggerWithOutput to log to t.Log().
func NewTestLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(io.Discard).With().Timestamp().Logger()
}

// NewTestLoggerWithOutput creates a test logger that logs to t.Log().
func NewTestLoggerWithOutput(t *testing.T) zerolog.Logger {
	return zerolog.New(&testLogWriter{t: t}).With().Timestamp().Logger()
}

// LogCallback returns a SAS log callback that writes to t.Log().
func LogCallback(t *testing.T) logging.Callback {
	return func(level logging.Level, module string, line int, format string, args ...any) {
		t.Helper()
		t.Logf("%s %s:%d %s", level, module, line, fmt.Sprintf(format, args...))
	}
}

// testLogWriter wraps testing.T to implement io.Writer.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (n int, err error) {
	w.t.Log(string(p))
	return len(p), nil
}
