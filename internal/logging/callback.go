package logging

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// Level is a SAS diagnostic level. Lower values are more severe.
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelStatus
	LevelInfo
	LevelVerbose
	LevelDebug
)

// String returns the upper-case level name.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarning:
		return "WARNING"
	case LevelStatus:
		return "STATUS"
	case LevelInfo:
		return "INFO"
	case LevelVerbose:
		return "VERBOSE"
	case LevelDebug:
		return "DEBUG"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Zerolog maps l onto the nearest zerolog level. Status and Info share
// info; Verbose maps to debug and Debug to trace.
func (l Level) Zerolog() zerolog.Level {
	switch l {
	case LevelError:
		return zerolog.ErrorLevel
	case LevelWarning:
		return zerolog.WarnLevel
	case LevelStatus, LevelInfo:
		return zerolog.InfoLevel
	case LevelVerbose:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// Callback receives library diagnostics. module names the emitting
// component and line the source line of the call site.
type Callback func(level Level, module string, line int, format string, args ...any)

// Discard drops every message.
func Discard(Level, string, int, string, ...any) {}

// ToZerolog returns a Callback that writes through logger.
func ToZerolog(logger zerolog.Logger) Callback {
	return func(level Level, module string, line int, format string, args ...any) {
		logger.WithLevel(level.Zerolog()).
			Str("sas_level", level.String()).
			Str("module", module).
			Int("line", line).
			Msgf(format, args...)
	}
}

var stdoutCallback = sync.OnceValue(func() Callback {
	return ToZerolog(New(Config{Level: "trace", Pretty: true, Output: os.Stdout}))
})

// Stdout writes every message to standard output through a console logger.
func Stdout(level Level, module string, line int, format string, args ...any) {
	stdoutCallback()(level, module, line, format, args...)
}

// Logger is a module-scoped front end to a Callback. The zero value
// discards everything.
type Logger struct {
	cb     Callback
	module string
}

// NewLogger returns a Logger reporting as module. A nil cb discards.
func NewLogger(cb Callback, module string) Logger {
	if cb == nil {
		cb = Discard
	}
	return Logger{cb: cb, module: module}
}

// With returns a Logger sharing the callback under a different module name.
func (l Logger) With(module string) Logger {
	return NewLogger(l.cb, module)
}

func (l Logger) Errorf(format string, args ...any)   { l.log(LevelError, format, args...) }
func (l Logger) Warningf(format string, args ...any) { l.log(LevelWarning, format, args...) }
func (l Logger) Statusf(format string, args ...any)  { l.log(LevelStatus, format, args...) }
func (l Logger) Infof(format string, args ...any)    { l.log(LevelInfo, format, args...) }
func (l Logger) Verbosef(format string, args ...any) { l.log(LevelVerbose, format, args...) }
func (l Logger) Debugf(format string, args ...any)   { l.log(LevelDebug, format, args...) }

func (l Logger) log(level Level, format string, args ...any) {
	if l.cb == nil {
		return
	}
	// Skip log and the exported wrapper to reach the caller.
	_, _, line, _ := runtime.Caller(2)
	l.cb(level, l.module, line, format, args...)
}
