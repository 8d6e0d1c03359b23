// Package cron runs pipeline operations on cron schedules in serve mode.
//
// A Trigger calls a job on its schedule until its context is cancelled:
//
//	trigger, err := cron.NewTrigger("0 2 * * *", func() error {
//	    return runner.Run([]string{"test"})
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	trigger.Start(ctx) // returns immediately
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when a cron expression cannot be parsed.
var ErrInvalidSchedule = errors.New("invalid cron schedule")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Job is the work a Trigger starts.
type Job func() error

// Trigger executes a Job according to a cron schedule.
type Trigger struct {
	spec     string
	schedule cron.Schedule
	job      Job
	logger   *slog.Logger
}

// NewTrigger creates a Trigger. spec has the standard five fields:
// minute, hour, day of month, month and day of week.
func NewTrigger(spec string, job Job, logger *slog.Logger) (*Trigger, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchedule, err)
	}
	return &Trigger{
		spec:     spec,
		schedule: schedule,
		job:      job,
		logger:   logger,
	}, nil
}

// Start launches a goroutine that calls the job on schedule.
// The goroutine exits when ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	go t.loop(ctx)
}

// NextRun returns the next scheduled time from now.
func (t *Trigger) NextRun() time.Time {
	return t.schedule.Next(time.Now())
}

func (t *Trigger) loop(ctx context.Context) {
	for {
		next := t.schedule.Next(time.Now())
		wait := time.Until(next)
		t.logger.Debug("waiting for next scheduled run", "next_run", next, "wait_duration", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.logger.Info("cron trigger shutting down", "schedule", t.spec)
			return
		case <-timer.C:
			t.fire()
		}
	}
}

func (t *Trigger) fire() {
	t.logger.Info("starting scheduled run", "schedule", t.spec)
	if err := t.job(); err != nil {
		t.logger.Warn("scheduled run could not start", "error", err)
	}
}
