package executor

import (
	"context"

	"github.com/avast/retry-go/v4"
	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
)

// dispatchWithRetry makes exactly retry+1 attempts unless one succeeds or ctx
// ends first, and returns the number of attempts made.
func (e *Executor) dispatchWithRetry(ctx context.Context, skill *skills.Skill, params map[string]any, execCtx skills.ExecutionContext) (any, int, error) {
	maxAttempts := skill.Execution.Retry + 1
	attempts := 0
	var (
		data    any
		lastErr error
	)

	err := retry.Do(
		func() error {
			attempts++
			out, err := e.dispatch(ctx, skill, params, execCtx)
			data = out
			lastErr = err
			return err
		},
		retry.Attempts(uint(maxAttempts)),
		retry.Delay(e.baseDelay),
		retry.MaxDelay(e.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return !skills.IsKind(err, skills.ErrValidation)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).
				WithField("attempt", n+1).
				WithField("max_attempts", maxAttempts).
				Warn("skill attempt failed, retrying")
		}),
	)
	if err != nil && lastErr != nil {
		// a cancelled ctx surfaces from retry.Do as ctx.Err(); report the attempt's own failure instead
		err = lastErr
	}
	return data, attempts, err
}
