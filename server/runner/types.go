package runner

import (
	"time"

	"github.com/nomis52/gostack/logging"
	"github.com/nomis52/gostack/pipeline"
)

// RunState represents the current state of the runner.
type RunState int

const (
	// RunStateIdle indicates no run is in progress.
	RunStateIdle RunState = iota
	// RunStateRunning indicates a run is in progress.
	RunStateRunning
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RunState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "running":
		*s = RunStateRunning
	default:
		*s = RunStateIdle
	}
	return nil
}

// RunSummary describes one run of a list of operations.
type RunSummary struct {
	ID         string   `json:"id"`
	Operations []string `json:"operations"`
	State      RunState `json:"state"`
	// StartedAt is when the run started. Nil if no run has occurred.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// EndedAt is when the run ended. Nil while the run is in progress.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Error contains the error message if the run failed. Empty on success.
	Error string `json:"error,omitempty"`
	// Warnings counts best-effort failures across the run.
	Warnings int `json:"warnings,omitempty"`
}

// RunStatus is the summary of the current or last run plus the live status
// line of every component it touched.
type RunStatus struct {
	RunSummary
	Statuses map[string]string `json:"statuses,omitempty"`
}

// RunRecord is a finished run as kept in history.
type RunRecord struct {
	RunSummary
	Runs []*pipeline.Run             `json:"runs"`
	Logs map[string][]logging.Entry `json:"logs,omitempty"`
}
