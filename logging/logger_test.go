package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*CalMeshLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Output = buf
	return NewLogger(cfg), buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel("DEBUG")
	assert.True(t, ok)
	assert.Equal(t, LogLevelDebug, l)

	l, ok = ParseLevel("warning")
	assert.True(t, ok)
	assert.Equal(t, LogLevelWarn, l)

	l, ok = ParseLevel("verbose")
	assert.False(t, ok)
	assert.Equal(t, LogLevelInfo, l)
}

func TestCalMeshLogger_ContextAttributes(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelDebug)
	logger.WithComponent("composition").WithSession("s-1").WithAccount(3, "ical").Info("hello", "folders", 2)

	entries := lines(t, buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "hello", e["msg"])
	assert.Equal(t, "composition", e["component"])
	assert.Equal(t, "s-1", e["session_id"])
	assert.Equal(t, float64(3), e["account"])
	assert.Equal(t, "ical", e["provider"])
	assert.Equal(t, float64(2), e["folders"])
}

func TestCalMeshLogger_WithDoesNotMutateParent(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)
	_ = logger.WithContext("k", "v")
	logger.Info("plain")

	e := lines(t, buf)[0]
	_, ok := e["k"]
	assert.False(t, ok)
	_, ok = e["account"]
	assert.False(t, ok)
}

func TestCalMeshLogger_LevelFilter(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelWarn)
	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	entries := lines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "w", entries[0]["msg"])
	assert.Equal(t, "e", entries[1]["msg"])
}

func TestCalMeshLogger_LogDispatch(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelDebug)
	logger.LogDispatch("events", 1, "groupware", time.Millisecond, nil)
	logger.LogDispatch("events", 2, "ical", time.Millisecond, errors.New("boom"))

	entries := lines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "DEBUG", entries[0]["level"])
	assert.Equal(t, true, entries[0]["success"])
	assert.Equal(t, "WARN", entries[1]["level"])
	assert.Equal(t, "boom", entries[1]["error"])
}

func TestCalMeshLogger_LogFanOut(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)
	logger.LogFanOut("eventsInFolders", 3, time.Second, 0)
	logger.LogFanOut("eventsInFolders", 3, time.Second, 1)

	entries := lines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "Fan-out completed", entries[0]["msg"])
	assert.Equal(t, "Fan-out completed with failures", entries[1]["msg"])
	assert.Equal(t, float64(3), entries[1]["account_count"])
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x", "k", 1)
		l.Warn("x")
		l.Error("x")
	})
}
