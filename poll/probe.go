package poll

import (
	"context"

	"github.com/nomis52/gostack/action"
)

// ActionProbe reports ready when a side-effect-free action succeeds on host.
func ActionProbe(a action.Action, ex action.Executor, host string) Probe {
	return ProbeFunc(func(ctx context.Context) bool {
		return a.Execute(ctx, ex, host).Succeeded
	})
}
