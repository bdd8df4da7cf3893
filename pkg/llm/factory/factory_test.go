package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/middleware/retry"
)

func TestBuildRequiresKey(t *testing.T) {
	f := New(Credentials{}, nil, retry.DefaultConfig)

	_, err := f.Build(llm.Tier{Provider: ProviderAnthropic, Model: "claude-haiku-4-5"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")

	_, err = f.Build(llm.Tier{Provider: "mystery", Model: "x"})
	require.Error(t, err)

	_, err = f.Build(llm.Tier{Provider: ProviderAnthropic})
	require.Error(t, err)
}

func TestBuildKeepsModelName(t *testing.T) {
	f := New(Credentials{AnthropicKey: "k", OpenAIKey: "k", GoogleKey: "k"}, nil, retry.DefaultConfig)

	for _, tier := range []llm.Tier{
		{Provider: ProviderAnthropic, Model: "claude-haiku-4-5", Timeout: time.Minute},
		{Provider: ProviderOpenAI, Model: "gpt-5-mini"},
		{Provider: ProviderGoogle, Model: "gemini-2.5-flash"},
		{Provider: ProviderOllama, Model: "llama3"},
	} {
		g, err := f.Build(tier)
		require.NoError(t, err, tier.Provider)
		assert.Equal(t, tier.Model, g.Model())
	}
}
