// Package metrics records latency, usage and cost of generations.
package metrics

import (
	"context"
	"time"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/llmerrors"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
)

// Recorder is satisfied by *metrics.Recorder in pkg/metrics.
type Recorder interface {
	ObserveRequest(model string, inputTokens, outputTokens int, costUSD float64, errorType string, duration time.Duration)
}

// Middleware observes each call. Place it outside the pricing middleware
// so cost is known. A truncated response is logged, not treated as failure.
func Middleware(recorder Recorder, logger *logx.Logger) llm.Middleware {
	return func(next llm.Generator) llm.Generator {
		return llm.WrapGenerator(func(ctx context.Context, req llm.Request) (llm.Response, error) {
			start := time.Now()
			resp, err := next.Generate(ctx, req)
			duration := time.Since(start)

			errorType := ""
			if err != nil {
				errorType = llmerrors.TypeOf(err).String()
			}
			if recorder != nil {
				recorder.ObserveRequest(next.Model(), resp.InputTokens, resp.OutputTokens, resp.CostUSD, errorType, duration)
			}
			if logger != nil {
				if err != nil {
					logger.Warn("%s model=%s failed after %dms: %v", req.Step, next.Model(), duration.Milliseconds(), err)
				} else {
					logger.Info("%s model=%s tokens=%d+%d cost=$%.4f stop=%s %dms",
						req.Step, next.Model(), resp.InputTokens, resp.OutputTokens, resp.CostUSD, resp.StopReason, duration.Milliseconds())
					if resp.StopReason == llm.StopTruncated {
						logger.Warn("%s output hit max_tokens (%d); it may be cut off", req.Step, req.MaxTokens)
					}
				}
			}
			return resp, err //nolint:wrapcheck // pass-through
		}, next.Model)
	}
}
