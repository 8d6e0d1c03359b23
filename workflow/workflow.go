// Package workflow sequences pipeline operations, so a cron trigger or an API
// call can ask for several of them at once, e.g. "stop_frontend,start_frontend".
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nomis52/gostack/pipeline"
)

// Workflow represents an executable unit of operations.
type Workflow interface {
	// Execute runs the workflow to completion.
	// Returns an error if any operation failed.
	Execute(ctx context.Context) error

	// Runs returns the runs finished so far, in execution order.
	Runs() []*pipeline.Run
}

// Executor runs a named operation. *pipeline.Pipeline implements it.
type Executor interface {
	Execute(ctx context.Context, op string) (*pipeline.Run, error)
}

// Operation returns a Workflow running a single operation.
func Operation(ex Executor, op string) Workflow {
	return &operation{ex: ex, op: op}
}

type operation struct {
	ex Executor
	op string

	mu  sync.Mutex
	run *pipeline.Run
}

func (o *operation) Execute(ctx context.Context) error {
	run, err := o.ex.Execute(ctx, o.op)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.run = run
	o.mu.Unlock()
	return run.Err()
}

func (o *operation) Runs() []*pipeline.Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return nil
	}
	return []*pipeline.Run{o.run}
}

// Operations composes one Workflow per operation name.
func Operations(ex Executor, ops ...string) Workflow {
	workflows := make([]Workflow, len(ops))
	for i, op := range ops {
		workflows[i] = Operation(ex, op)
	}
	return Compose(workflows...)
}

// Compose creates a composite workflow that executes multiple workflows in sequence.
// Each workflow is executed in order, and execution continues even if a workflow fails.
// If multiple workflows fail, their errors are joined so errors.Is still sees each one.
func Compose(workflows ...Workflow) Workflow {
	return &compositeWorkflow{
		workflows: workflows,
	}
}

// compositeWorkflow executes multiple workflows in sequence.
type compositeWorkflow struct {
	workflows []Workflow
}

// Execute runs all workflows in sequence, continuing even if one fails.
// A cancelled context stops the sequence.
func (c *compositeWorkflow) Execute(ctx context.Context) error {
	var errs []error

	for i, w := range c.workflows {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("workflow %d not started: %w", i, err))
			break
		}
		if err := w.Execute(ctx); err != nil {
			errs = append(errs, fmt.Errorf("workflow %d failed: %w", i, err))
		}
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return fmt.Errorf("%d workflow(s) failed:\n%w", len(errs), errors.Join(errs...))
}

// Runs merges the runs of all composed workflows.
func (c *compositeWorkflow) Runs() []*pipeline.Run {
	var runs []*pipeline.Run
	for _, w := range c.workflows {
		runs = append(runs, w.Runs()...)
	}
	return runs
}
