package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/llmerrors"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/llmtest"
)

var fast = Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}

func TestCalculateDelay(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}, nil)

	assert.Equal(t, time.Duration(0), p.CalculateDelay(1))
	assert.Equal(t, 100*time.Millisecond, p.CalculateDelay(2))
	assert.Equal(t, 200*time.Millisecond, p.CalculateDelay(3))
	assert.Equal(t, time.Second, p.CalculateDelay(10))
}

func TestJitterStaysWithinTenPercent(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: time.Minute, BackoffFactor: 2, Jitter: true}, nil)
	for i := 0; i < 50; i++ {
		d := p.CalculateDelay(2)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestRetriesTransientThenSucceeds(t *testing.T) {
	fake := llmtest.New("m",
		llmtest.Fail(errors.New("HTTP 503 overloaded")),
		llmtest.Text("ok", 1, 1),
	)
	g := llm.Chain(fake, Middleware(NewPolicy(fast, nil)))

	resp, err := g.Generate(context.Background(), llm.Request{Step: "expand"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, fake.Calls(""))
}

func TestDoesNotRetryAuth(t *testing.T) {
	fake := llmtest.New("m", llmtest.Fail(errors.New("status code: 401")))
	g := llm.Chain(fake, Middleware(NewPolicy(fast, nil)))

	_, err := g.Generate(context.Background(), llm.Request{})
	require.Error(t, err)
	assert.Equal(t, 1, fake.Calls(""))
	assert.False(t, llmerrors.IsServiceUnavailable(err))
}

func TestExhaustedRetriesBecomeServiceUnavailable(t *testing.T) {
	boom := errors.New("connection refused")
	fake := llmtest.New("m", llmtest.Fail(boom), llmtest.Fail(boom), llmtest.Fail(boom))
	g := llm.Chain(fake, Middleware(NewPolicy(fast, nil)))

	_, err := g.Generate(context.Background(), llm.Request{})
	require.Error(t, err)
	assert.True(t, llmerrors.IsServiceUnavailable(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, fake.Calls(""))
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake := llmtest.New("m", llmtest.Fail(context.Canceled))
	g := llm.Chain(fake, Middleware(NewPolicy(fast, nil)))

	_, err := g.Generate(ctx, llm.Request{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fake.Calls(""))
}
