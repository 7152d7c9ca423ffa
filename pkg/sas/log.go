package sas

import (
	"github.com/rs/zerolog"

	"github.com/coral-mesh/sas-client/internal/logging"
)

// LogLevel is the severity passed to a LogCallback.
type LogLevel = logging.Level

const (
	LogLevelError   = logging.LevelError
	LogLevelWarning = logging.LevelWarning
	LogLevelStatus  = logging.LevelStatus
	LogLevelInfo    = logging.LevelInfo
	LogLevelVerbose = logging.LevelVerbose
	LogLevelDebug   = logging.LevelDebug
)

// LogCallback receives the library's diagnostics. module names the
// emitting component and line the source line that logged.
type LogCallback = logging.Callback

// LogToStdout writes every diagnostic to standard output.
func LogToStdout(level LogLevel, module string, line int, format string, args ...any) {
	logging.Stdout(level, module, line, format, args...)
}

// DiscardLogs drops every diagnostic.
func DiscardLogs(level LogLevel, module string, line int, format string, args ...any) {}

// LogToZerolog returns a LogCallback that writes through logger, mapping
// SAS levels onto zerolog levels.
func LogToZerolog(logger zerolog.Logger) LogCallback {
	return logging.ToZerolog(logger)
}
