package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapturing(level slog.Level) (*slog.Logger, *LogCollector, *bytes.Buffer) {
	var buf bytes.Buffer
	collector := NewLogCollector()
	next := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})
	return slog.New(NewCapturingHandler(next, collector, "frontend")), collector, &buf
}

func TestCapturingHandler_CapturesAndPassesThrough(t *testing.T) {
	logger, collector, buf := newCapturing(slog.LevelInfo)

	logger.Info("step succeeded", "host", "web1", "attempts", 2)

	entries := collector.Entries("frontend")
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "step succeeded", entries[0].Message)
	assert.Equal(t, "web1", entries[0].Attrs["host"])
	assert.Equal(t, int64(2), entries[0].Attrs["attempts"])
	assert.Contains(t, buf.String(), "step succeeded")
}

func TestCapturingHandler_CapturesBelowOutputLevel(t *testing.T) {
	logger, collector, buf := newCapturing(slog.LevelWarn)

	logger.Debug("guard check", "command", "test -d node_modules")
	logger.Warn("test phase failed")

	entries := collector.Entries("frontend")
	require.Len(t, entries, 2)
	assert.Equal(t, "debug", entries[0].Level)
	assert.NotContains(t, buf.String(), "guard check")
	assert.Contains(t, buf.String(), "test phase failed")
}

func TestCapturingHandler_WithChains(t *testing.T) {
	logger, collector, _ := newCapturing(slog.LevelInfo)

	logger.With("component", "frontend").With("phase", "install").WithGroup("action").
		Info("running", "name", "npm install")

	entries := collector.Entries("frontend")
	require.Len(t, entries, 1)
	attrs := entries[0].Attrs
	assert.Equal(t, "frontend", attrs["component"])
	assert.Equal(t, "install", attrs["phase"])
	assert.Equal(t, "npm install", attrs["action.name"])
}

func TestCapturingHandler_ValueKinds(t *testing.T) {
	logger, collector, _ := newCapturing(slog.LevelInfo)

	logger.Info("poll",
		"error", errors.New("connection refused"),
		"timeout", 2*time.Second,
		"ready", false,
		slog.Group("probe", "url", "http://localhost:8081"),
	)

	attrs := collector.Entries("frontend")[0].Attrs
	assert.Equal(t, "connection refused", attrs["error"])
	assert.Equal(t, "2s", attrs["timeout"])
	assert.Equal(t, false, attrs["ready"])
	assert.Equal(t, map[string]any{"url": "http://localhost:8081"}, attrs["probe"])
}

func TestCapturingHandler_Concurrent(t *testing.T) {
	logger, collector, _ := newCapturing(slog.LevelInfo)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 10 {
				logger.Info("host done", "worker", i, "n", j)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, collector.Entries("frontend"), 200)
}

func TestLogCollector(t *testing.T) {
	c := NewLogCollector()
	c.Add("platform", Entry{Message: "a"})
	c.Add("frontend", Entry{Message: "b"})
	c.Add("platform", Entry{Message: "c"})

	assert.Equal(t, []string{"platform", "frontend"}, c.Keys())
	assert.Len(t, c.Entries("platform"), 2)
	assert.Nil(t, c.Entries("engine"))

	got := c.Entries("platform")
	got[0].Message = "changed"
	assert.Equal(t, "a", c.Entries("platform")[0].Message, "entries are copies")

	all := c.All()
	assert.Len(t, all, 2)

	c.Clear()
	assert.Empty(t, c.Keys())
	assert.Empty(t, c.All())
}

func TestCapturingLoggerHook(t *testing.T) {
	collector := NewLogCollector()
	hook := NewCapturingLoggerHook(collector)
	base := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	hook.LoggerFor(base, "frontend").Info("from frontend")
	hook.LoggerFor(base, "platform").Info("from platform")
	hook.LoggerFor(base, "frontend").InfoContext(context.Background(), "again")

	assert.Len(t, collector.Entries("frontend"), 2)
	assert.Len(t, collector.Entries("platform"), 1)
}
