package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// mockRunnable is a test implementation of Runnable.
type mockRunnable struct {
	runCount atomic.Int32
	runErr   error

	mu         sync.Mutex
	operations []string
}

func (m *mockRunnable) Run(operations []string) error {
	m.runCount.Add(1)
	m.mu.Lock()
	m.operations = operations
	m.mu.Unlock()
	return m.runErr
}

func TestNewTrigger(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "daily at 2am", spec: "0 2 * * *"},
		{name: "every hour", spec: "0 * * * *"},
		{name: "every minute", spec: "* * * * *"},
		{name: "empty", spec: "", wantErr: true},
		{name: "wrong format", spec: "not a cron spec", wantErr: true},
		{name: "too few fields", spec: "0 2 *", wantErr: true},
		{name: "seconds field", spec: "0 0 2 * * *", wantErr: true},
		{name: "invalid value", spec: "60 2 * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewTrigger(tt.spec, func() error { return nil }, discard)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSchedule)
				assert.Nil(t, trigger)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.spec, trigger.spec)
		})
	}
}

func TestTrigger_NextRun(t *testing.T) {
	trigger, err := NewTrigger("0 2 * * *", func() error { return nil }, discard)
	require.NoError(t, err)

	next := trigger.NextRun()
	assert.True(t, next.After(time.Now()), "next run should be in the future")
	assert.Equal(t, 2, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestTrigger_CancellationStopsLoop(t *testing.T) {
	runnable := &mockRunnable{}
	trigger, err := NewTrigger("* * * * *", func() error { return runnable.Run([]string{"test"}) }, discard)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	trigger.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	// cancelled long before the first minute boundary could be reached
	if time.Until(trigger.NextRun()) > time.Second {
		assert.Equal(t, int32(0), runnable.runCount.Load())
	}
}

func TestTrigger_FireLogsJobError(t *testing.T) {
	runnable := &mockRunnable{runErr: errors.New("run already in progress")}
	trigger, err := NewTrigger("* * * * *", func() error { return runnable.Run([]string{"bootstrap"}) }, discard)
	require.NoError(t, err)

	trigger.fire()
	assert.Equal(t, int32(1), runnable.runCount.Load())
	assert.Equal(t, []string{"bootstrap"}, runnable.operations)
}
