package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleLoggerSink(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsoleLogger(LevelNone)
	log.SetSink(&buf, LevelInfo)

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	log.WithPrefix("[cache]").With(map[string]interface{}{"backend": "memory"}).Info("evicted %s", "a")
	out := buf.String()
	assert.Contains(t, out, "[INFO ]")
	assert.Contains(t, out, "[cache]")
	assert.Contains(t, out, "evicted a")
	assert.Contains(t, out, `{"backend":"memory"}`)
}

func TestConsoleLoggerLevels(t *testing.T) {
	log := NewConsoleLogger(LevelWarn)
	assert.False(t, log.IsLevelEnabled(LevelDebug))
	assert.True(t, log.IsLevelEnabled(LevelWarn))
	assert.True(t, log.IsLevelEnabled(LevelError))
	assert.False(t, log.IsLevelEnabled(LevelNone))
}

func TestConsoleLoggerStack(t *testing.T) {
	child := NewTestLogger()
	log := NewConsoleLogger(LevelNone).Stack(child)
	log.Warn("forwarded %d", 1)
	logs := child.Logs()
	assert.Len(t, logs, 1)
	assert.Equal(t, "forwarded 1", logs[0].Formatted())
}
