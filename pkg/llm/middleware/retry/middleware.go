package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/llmerrors"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
)

// Middleware retries according to policy. When every attempt failed with
// a retryable error it returns a ServiceUnavailable error.
func Middleware(policy *Policy) llm.Middleware {
	logger := logx.NewLogger("llm")
	return func(next llm.Generator) llm.Generator {
		return llm.WrapGenerator(func(ctx context.Context, req llm.Request) (llm.Response, error) {
			var lastErr error
			for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
				if delay := policy.CalculateDelay(attempt); delay > 0 {
					timer := time.NewTimer(delay)
					select {
					case <-ctx.Done():
						timer.Stop()
						return llm.Response{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
					case <-timer.C:
					}
				}

				resp, err := next.Generate(ctx, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err
				if !policy.ShouldRetry(err) {
					return llm.Response{}, err //nolint:wrapcheck // pass-through
				}
				if attempt < policy.Config.MaxAttempts {
					logger.Warn("%s attempt %d/%d failed, retrying: %v", req.Step, attempt, policy.Config.MaxAttempts, err)
				}
			}
			return llm.Response{}, llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
		}, next.Model)
	}
}
