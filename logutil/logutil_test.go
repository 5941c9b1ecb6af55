package logutil

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerRendersTraceLevelLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace)
	logger.Log(context.Background(), LevelTrace, "hello")

	out := buf.String()
	assert.Contains(t, out, "TRACE")
	assert.Contains(t, out, "hello")
}

func TestNewLoggerRespectsLevelFloor(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	logger.Log(context.Background(), LevelTrace, "should not appear")
	logger.Log(context.Background(), slog.LevelInfo, "should appear")

	out := buf.String()
	assert.False(t, strings.Contains(out, "should not appear"))
	assert.True(t, strings.Contains(out, "should appear"))
}
