// Package factory builds provider clients wrapped in the standard middleware chain.
package factory

import (
	"fmt"
	"strings"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/middleware/metrics"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/middleware/retry"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/middleware/timeout"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/providers/anthropic"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/providers/google"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/providers/ollama"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/providers/openai"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
)

// Provider names accepted in Tier.Provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Credentials holds per-provider keys; OllamaHost is a URL, not a secret.
type Credentials struct {
	AnthropicKey string
	OpenAIKey    string
	GoogleKey    string
	OllamaHost   string
}

// Factory constructs Generators sharing one metrics recorder and retry policy.
type Factory struct {
	creds    Credentials
	recorder metrics.Recorder
	retry    retry.Config
	logger   *logx.Logger
}

// New returns a Factory. recorder may be nil.
func New(creds Credentials, recorder metrics.Recorder, retryCfg retry.Config) *Factory {
	return &Factory{
		creds:    creds,
		recorder: recorder,
		retry:    retryCfg,
		logger:   logx.NewLogger("llm"),
	}
}

// Build returns the provider for tier wrapped as
// metrics -> pricing -> retry -> timeout -> provider.
// The timeout applies per attempt.
func (f *Factory) Build(tier llm.Tier) (llm.Generator, error) {
	base, err := f.provider(tier)
	if err != nil {
		return nil, err
	}
	middlewares := []llm.Middleware{
		metrics.Middleware(f.recorder, f.logger.With(tier.Model)),
		llm.Priced(tier),
		retry.Middleware(retry.NewPolicy(f.retry, nil)),
	}
	if tier.Timeout > 0 {
		middlewares = append(middlewares, timeout.Middleware(tier.Timeout))
	}
	return llm.Chain(base, middlewares...), nil
}

func (f *Factory) provider(tier llm.Tier) (llm.Generator, error) {
	if tier.Model == "" {
		return nil, fmt.Errorf("tier has no model")
	}
	switch strings.ToLower(tier.Provider) {
	case ProviderAnthropic, "":
		if f.creds.AnthropicKey == "" {
			return nil, fmt.Errorf("model %s: ANTHROPIC_API_KEY is not set", tier.Model)
		}
		return anthropic.New(f.creds.AnthropicKey, tier.Model, tier.MaxTokens), nil
	case ProviderOpenAI:
		if f.creds.OpenAIKey == "" {
			return nil, fmt.Errorf("model %s: OPENAI_API_KEY is not set", tier.Model)
		}
		return openai.New(f.creds.OpenAIKey, tier.Model, tier.MaxTokens), nil
	case ProviderGoogle:
		if f.creds.GoogleKey == "" {
			return nil, fmt.Errorf("model %s: GOOGLE_GENAI_API_KEY is not set", tier.Model)
		}
		return google.New(f.creds.GoogleKey, tier.Model, tier.MaxTokens), nil
	case ProviderOllama:
		return ollama.New(f.creds.OllamaHost, tier.Model, tier.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown provider %q for model %s", tier.Provider, tier.Model)
	}
}
