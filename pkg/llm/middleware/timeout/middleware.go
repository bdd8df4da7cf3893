// Package timeout bounds each generation with a deadline.
package timeout

import (
	"context"
	"time"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
)

// Middleware gives every call its own deadline; zero disables it.
func Middleware(d time.Duration) llm.Middleware {
	return func(next llm.Generator) llm.Generator {
		if d <= 0 {
			return next
		}
		return llm.WrapGenerator(func(ctx context.Context, req llm.Request) (llm.Response, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Generate(ctx, req)
		}, next.Model)
	}
}
