// Package runner executes operations in the background for the gostack server.
//
// The runner handles:
//   - Starting runs of one or more operations in the background
//   - Preventing concurrent runs
//   - Tracking the live status line of every component
//   - Maintaining history of completed runs with their captured logs
//
// Each run builds a fresh pipeline, so a reloaded config takes effect on the
// next run.
//
//	r := runner.New(logger, st.Pipeline)
//	if err := r.Run([]string{"stop_frontend", "start_frontend"}); err != nil {
//	    if errors.Is(err, runner.ErrRunInProgress) {
//	        // someone else is deploying
//	    }
//	}
//	status := r.Status() // live statuses while running
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nomis52/gostack/action"
	"github.com/nomis52/gostack/logging"
	"github.com/nomis52/gostack/pipeline"
	"github.com/nomis52/gostack/status"
	"github.com/nomis52/gostack/workflow"
)

// ErrRunInProgress is returned when attempting to start a run while one is already running.
var ErrRunInProgress = errors.New("run already in progress")

// PipelineFunc builds the pipeline for one run. The runner adds its own
// status handler and log capture through opts.
type PipelineFunc func(opts ...pipeline.Option) (*pipeline.Pipeline, error)

// Runner manages background runs.
type Runner struct {
	logger   *slog.Logger
	pipeline PipelineFunc
	store    StateStore
	ctx      context.Context

	mu       sync.Mutex
	current  RunSummary
	statuses *status.Handler
	done     chan struct{}
}

// Option configures a Runner.
type Option func(*Runner)

// WithStateStore configures the runner to use the provided store for history.
func WithStateStore(store StateStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithContext sets the context runs execute under. Cancelling it stops a run
// before its next step.
func WithContext(ctx context.Context) Option {
	return func(r *Runner) {
		r.ctx = ctx
	}
}

// New creates a new Runner.
func New(logger *slog.Logger, fn PipelineFunc, opts ...Option) *Runner {
	r := &Runner{
		logger:   logger,
		pipeline: fn,
		store:    NewMemoryStore(0),
		ctx:      context.Background(),
		current:  RunSummary{State: RunStateIdle},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Operations lists the operations the current config accepts.
func (r *Runner) Operations() ([]string, error) {
	p, err := r.pipeline()
	if err != nil {
		return nil, err
	}
	return p.Operations(), nil
}

// Run starts the operations in the background, in order.
// Returns ErrRunInProgress if a run is already in progress, and an error
// wrapping action.ErrUsage if an operation is unknown.
func (r *Runner) Run(operations []string) error {
	if len(operations) == 0 {
		return fmt.Errorf("%w: no operations given", action.ErrUsage)
	}

	statuses := status.NewHandler()
	logs := logging.NewLogCollector()
	p, err := r.pipeline(
		pipeline.WithStatusHandler(statuses),
		pipeline.WithLoggerHook(logging.NewCapturingLoggerHook(logs)),
	)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	available := p.Operations()
	for _, op := range operations {
		if !slices.Contains(available, op) {
			return fmt.Errorf("%w: unknown operation %q", action.ErrUsage, op)
		}
	}

	done, ok := r.tryStart(operations, statuses)
	if !ok {
		return ErrRunInProgress
	}
	r.logger.Info("starting run", "id", r.Status().ID, "operations", operations)

	go func() {
		defer close(done)
		wf := workflow.Operations(p, operations...)
		err := wf.Execute(r.ctx)
		r.finish(wf.Runs(), logs, err)
	}()
	return nil
}

// Wait blocks until the current run, if any, has finished.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Status returns the current or last run with live component statuses.
func (r *Runner) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := RunStatus{RunSummary: r.current}
	st.Operations = slices.Clone(r.current.Operations)
	if r.statuses != nil {
		st.Statuses = r.statuses.All()
	}
	return st
}

// IsRunning returns true if a run is in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.State == RunStateRunning
}

// History returns the summaries of completed runs, most recent first.
func (r *Runner) History() []RunSummary {
	return r.store.History()
}

// Record returns a completed run with its pipeline runs and logs.
func (r *Runner) Record(id string) (RunRecord, bool) {
	return r.store.Get(id)
}

// tryStart transitions from idle to running.
func (r *Runner) tryStart(operations []string, statuses *status.Handler) (chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current.State == RunStateRunning {
		return nil, false
	}

	now := time.Now()
	r.current = RunSummary{
		ID:         uuid.NewString(),
		Operations: slices.Clone(operations),
		State:      RunStateRunning,
		StartedAt:  &now,
	}
	r.statuses = statuses
	r.done = make(chan struct{})
	return r.done, true
}

// finish transitions from running to idle and records the result.
func (r *Runner) finish(runs []*pipeline.Run, logs *logging.LogCollector, err error) {
	r.mu.Lock()
	end := time.Now()
	r.current.State = RunStateIdle
	r.current.EndedAt = &end
	r.current.Error = ""
	if err != nil {
		r.current.Error = err.Error()
	}
	r.current.Warnings = 0
	for _, run := range runs {
		r.current.Warnings += len(run.Warnings)
	}
	record := RunRecord{RunSummary: r.current, Runs: runs, Logs: logs.All()}
	record.Operations = slices.Clone(r.current.Operations)
	r.mu.Unlock()

	duration := end.Sub(*record.StartedAt)
	if err != nil {
		r.logger.Error("run failed", "id", record.ID, "error", err, "duration", duration)
	} else {
		r.logger.Info("run completed", "id", record.ID, "duration", duration, "warnings", record.Warnings)
	}

	if err := r.store.Save(record); err != nil {
		r.logger.Error("failed to save run to store", "error", err)
	}
}
