package llm_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/llmtest"
)

func tag(name string, order *[]string) llm.Middleware {
	return func(next llm.Generator) llm.Generator {
		return llm.WrapGenerator(func(ctx context.Context, req llm.Request) (llm.Response, error) {
			*order = append(*order, name)
			return next.Generate(ctx, req)
		}, next.Model)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	g := llm.Chain(llmtest.New("m", llmtest.Text("ok", 1, 1)), tag("a", &order), tag("b", &order))

	_, err := g.Generate(context.Background(), llm.Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, "m", g.Model())
}

func TestPricedUsesTierRates(t *testing.T) {
	tier := llm.Tier{Model: "claude-haiku", InputPerMillion: 0.80, OutputPerMillion: 4.00}
	g := llm.Chain(llmtest.New("claude-haiku", llmtest.Text("ok", 1_000_000, 500_000)), llm.Priced(tier))

	resp, err := g.Generate(context.Background(), llm.Request{})
	require.NoError(t, err)
	assert.InDelta(t, 2.80, resp.CostUSD, 1e-9)
	assert.Equal(t, "claude-haiku", resp.Model)
}

func TestTokenCounterTruncate(t *testing.T) {
	tc := llm.NewTokenCounter()
	text := strings.Repeat("trend research excerpt ", 500)

	assert.Greater(t, tc.Count(text), 100)
	cut := tc.Truncate(text, 100)
	assert.LessOrEqual(t, tc.Count(cut), 101)
	assert.True(t, strings.HasPrefix(text, cut))

	short := "short"
	assert.Equal(t, short, tc.Truncate(short, 100))
	assert.Equal(t, "", tc.Truncate(short, 0))
}
