package action

import "fmt"

// Status is the outcome of a step as recorded in a pipeline run.
type Status int

const (
	// StatusSucceeded indicates the wrapped Action ran and its predicate held.
	StatusSucceeded Status = iota
	// StatusSkippedIdempotent indicates a Guard found the effect already in place.
	StatusSkippedIdempotent
	// StatusFailed indicates the Action failed or the step could not proceed.
	StatusFailed
	// StatusSkippedByUser indicates the operator declined at a confirmation Gate.
	StatusSkippedByUser
)

// String returns a human-readable representation of the Status.
func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusSkippedIdempotent:
		return "skipped-idempotent"
	case StatusFailed:
		return "failed"
	case StatusSkippedByUser:
		return "skipped-by-user"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for _, c := range []Status{StatusSucceeded, StatusSkippedIdempotent, StatusFailed, StatusSkippedByUser} {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// Ok reports whether the status lets dependent work proceed.
func (s Status) Ok() bool {
	return s == StatusSucceeded || s == StatusSkippedIdempotent
}

// Result is the outcome of running a Step on one host.
type Result struct {
	Action   string  `json:"action"`
	Host     string  `json:"host"`
	Status   Status  `json:"status"`
	Outcome  Outcome `json:"outcome"`
	Attempts int     `json:"attempts,omitempty"`
	Err      error   `json:"-"`
}

// String returns a one-line summary of the result.
func (r Result) String() string {
	return fmt.Sprintf("%s on %s: %s", r.Action, r.Host, r.Status)
}

// Combine folds several statuses into the status of the whole:
// any failure wins, then any operator decline, then any real work,
// otherwise everything was already in place.
func Combine(statuses ...Status) Status {
	var declined, succeeded bool
	for _, s := range statuses {
		switch s {
		case StatusFailed:
			return StatusFailed
		case StatusSkippedByUser:
			declined = true
		case StatusSucceeded:
			succeeded = true
		}
	}
	switch {
	case declined:
		return StatusSkippedByUser
	case succeeded:
		return StatusSucceeded
	default:
		return StatusSkippedIdempotent
	}
}
