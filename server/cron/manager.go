package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Runnable starts a run of operations. It is implemented by *runner.Runner.
type Runnable interface {
	Run(operations []string) error
}

// Manager owns one Trigger per TriggerSpec.
type Manager struct {
	triggers []*Trigger
	logger   *slog.Logger
}

// NewManager validates specs against the available operations and builds their triggers.
func NewManager(specs []TriggerSpec, runnable Runnable, available []string, logger *slog.Logger) (*Manager, error) {
	triggers := make([]*Trigger, 0, len(specs))
	for _, spec := range specs {
		if err := spec.Validate(available); err != nil {
			return nil, fmt.Errorf("trigger '%s': %w", spec, err)
		}
		ops := spec.Operations
		trigger, err := NewTrigger(spec.Schedule, func() error { return runnable.Run(ops) }, logger.With("operations", ops))
		if err != nil {
			return nil, fmt.Errorf("trigger '%s': %w", spec, err)
		}
		triggers = append(triggers, trigger)
		logger.Info("trigger registered", "operations", ops, "schedule", spec.Schedule, "next_run", trigger.NextRun())
	}
	return &Manager{triggers: triggers, logger: logger}, nil
}

// Start launches all triggers. They stop when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	for _, t := range m.triggers {
		t.Start(ctx)
	}
}

// NextRun returns the earliest scheduled run across all triggers, or the
// zero time if there are none.
func (m *Manager) NextRun() time.Time {
	var earliest time.Time
	for _, t := range m.triggers {
		if next := t.NextRun(); earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}
