package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	runnable := &mockRunnable{}
	specs, err := ParseTriggerSpecs("bootstrap:0 2 * * *;test:0 3 * * *", testOperations)
	require.NoError(t, err)

	m, err := NewManager(specs, runnable, testOperations, discard)
	require.NoError(t, err)
	assert.Len(t, m.triggers, 2)

	m.triggers[1].fire()
	assert.Equal(t, []string{"test"}, runnable.operations)
}

func TestNewManager_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		spec    TriggerSpec
		wantErr string
	}{
		{name: "unknown operation", spec: TriggerSpec{Operations: []string{"deploy"}, Schedule: "0 2 * * *"}, wantErr: "unknown operation"},
		{name: "bad schedule", spec: TriggerSpec{Operations: []string{"test"}, Schedule: "daily"}, wantErr: "invalid cron schedule"},
		{name: "no operations", spec: TriggerSpec{Schedule: "0 2 * * *"}, wantErr: "no operations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager([]TriggerSpec{tt.spec}, &mockRunnable{}, testOperations, discard)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, m)
		})
	}
}

func TestManager_NextRun(t *testing.T) {
	empty, err := NewManager(nil, &mockRunnable{}, testOperations, discard)
	require.NoError(t, err)
	assert.True(t, empty.NextRun().IsZero())

	m, err := NewManager([]TriggerSpec{
		{Operations: []string{"bootstrap"}, Schedule: "0 0 1 1 *"},
		{Operations: []string{"test"}, Schedule: "* * * * *"},
	}, &mockRunnable{}, testOperations, discard)
	require.NoError(t, err)

	next := m.NextRun()
	assert.True(t, next.After(time.Now()))
	assert.WithinDuration(t, time.Now(), next, time.Minute+time.Second)
}

func TestManager_Start(t *testing.T) {
	m, err := NewManager([]TriggerSpec{{Operations: []string{"test"}, Schedule: "0 2 * * *"}}, &mockRunnable{}, testOperations, discard)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()
}
