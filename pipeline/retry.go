package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nomis52/gostack/action"
)

// retrying returns the innermost handler of a step. Only the wrapped action
// is retried, and only when it fails; guards and gates sit outside it and run
// once per invocation.
func (p *Pipeline) retrying(retries int, logger *slog.Logger) action.Handler {
	if retries <= 0 {
		return action.Run
	}
	return func(ctx context.Context, inv action.Invocation) action.Result {
		var res action.Result
		attempts := 0
		operation := func() error {
			attempts++
			res = action.Run(ctx, inv)
			if res.Status == action.StatusFailed {
				return res.Err
			}
			return nil
		}

		b := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(p.retryDelay), uint64(retries)),
			ctx,
		)
		_ = backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
			logger.Warn("action failed, retrying",
				"host", inv.Host,
				"attempt", attempts,
				"retries", retries,
				"wait", wait,
				"error", err,
			)
		})
		res.Attempts = attempts
		return res
	}
}
