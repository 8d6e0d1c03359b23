// Package handlers provides HTTP handlers for the gostack server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"time"

	"github.com/nomis52/gostack/config"
	"github.com/nomis52/gostack/pipeline"
	"github.com/nomis52/gostack/server/runner"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// OperationRunner can start runs of operations.
type OperationRunner interface {
	Run(operations []string) error
}

// RunStatusProvider provides access to run status.
type RunStatusProvider interface {
	Status() runner.RunStatus
}

// HistoryProvider provides access to run history.
type HistoryProvider interface {
	History() []runner.RunSummary
	Record(id string) (runner.RunRecord, bool)
}

// OperationsProvider lists the operations the current config accepts.
type OperationsProvider interface {
	Operations() ([]string, error)
}

// Planner previews an operation without running it.
type Planner interface {
	Plan(operation string) ([]pipeline.PlannedStep, error)
}

// Scheduler reports the next cron run.
type Scheduler interface {
	NextRun() *time.Time
}
