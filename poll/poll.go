// Package poll waits for an external condition that has no push notification,
// such as an HTTP service becoming ready after it is started.
package poll

import (
	"context"
	"fmt"
	"time"
)

// Result is the outcome of WaitUntil.
type Result int

const (
	// Satisfied indicates the probe reported true before the timeout.
	Satisfied Result = iota
	// TimedOut indicates the timeout elapsed first.
	TimedOut
)

// String returns a human-readable representation of the Result.
func (r Result) String() string {
	if r == Satisfied {
		return "satisfied"
	}
	return "timed_out"
}

// Probe is a side-effect-free check interpreted as a boolean.
type Probe interface {
	Ready(ctx context.Context) bool
}

// ProbeFunc adapts a function to a Probe.
type ProbeFunc func(ctx context.Context) bool

// Ready calls f.
func (f ProbeFunc) Ready(ctx context.Context) bool {
	return f(ctx)
}

// WaitUntil evaluates probe immediately and then every period until it
// reports true or timeout elapses. The probe's context carries the overall
// deadline so a slow probe cannot stretch the wait past the timeout.
//
// Cancelling ctx ends the wait early with TimedOut and the context error.
func WaitUntil(ctx context.Context, probe Probe, timeout, period time.Duration) (Result, error) {
	if timeout <= 0 {
		return TimedOut, fmt.Errorf("timeout must be positive, got %v", timeout)
	}
	if period <= 0 {
		return TimedOut, fmt.Errorf("period must be positive, got %v", period)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if probe.Ready(probeCtx) {
		return Satisfied, nil
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TimedOut, ctx.Err()
		case <-deadline.C:
			return TimedOut, nil
		case <-ticker.C:
			if probe.Ready(probeCtx) {
				return Satisfied, nil
			}
		}
	}
}
