package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	level  Level
	module string
	line   int
	msg    string
}

func capture(records *[]record) Callback {
	return func(level Level, module string, line int, format string, args ...any) {
		*records = append(*records, record{
			level:  level,
			module: module,
			line:   line,
			msg:    format,
		})
	}
}

func TestLogger_ForwardsLevelAndModule(t *testing.T) {
	var records []record
	log := NewLogger(capture(&records), "connection")

	log.Errorf("e")
	log.Warningf("w")
	log.Statusf("s")
	log.Infof("i")
	log.Verbosef("v")
	log.Debugf("d")
	log.With("queue").Infof("q")

	require.Len(t, records, 7)
	want := []Level{LevelError, LevelWarning, LevelStatus, LevelInfo, LevelVerbose, LevelDebug, LevelInfo}
	for i, r := range records {
		assert.Equal(t, want[i], r.level)
		assert.Positive(t, r.line, "line number of call site")
	}
	assert.Equal(t, "connection", records[0].module)
	assert.Equal(t, "queue", records[6].module)
}

func TestLogger_ZeroValueAndNilCallback(t *testing.T) {
	var zero Logger
	zero.Errorf("dropped")

	NewLogger(nil, "sas").Errorf("dropped")
}

func TestToZerolog(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.TraceLevel)

	ToZerolog(logger)(LevelWarning, "sas", 12, "dropped %d params", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "WARNING", entry["sas_level"])
	assert.Equal(t, "sas", entry["module"])
	assert.Equal(t, float64(12), entry["line"])
	assert.Equal(t, "dropped 3 params", entry["message"])
}

func TestLevel_Zerolog(t *testing.T) {
	assert.Equal(t, zerolog.ErrorLevel, LevelError.Zerolog())
	assert.Equal(t, zerolog.InfoLevel, LevelStatus.Zerolog())
	assert.Equal(t, zerolog.DebugLevel, LevelVerbose.Zerolog())
	assert.Equal(t, zerolog.TraceLevel, LevelDebug.Zerolog())
	assert.Equal(t, "VERBOSE", LevelVerbose.String())
	assert.Equal(t, "LEVEL(9)", Level(9).String())
}

func TestBuiltinSinks(t *testing.T) {
	Discard(LevelError, "sas", 1, "ignored")
	Stdout(LevelDebug, "sas", 1, "stdout sink %s", "ok")
}
