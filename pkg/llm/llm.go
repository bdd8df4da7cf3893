// Package llm defines the text generation interface shared by every provider.
package llm

import (
	"context"
	"time"
)

// StopReason normalises provider stop reasons.
type StopReason string

const (
	StopEnd       StopReason = "end"
	StopTruncated StopReason = "truncated"
	StopOther     StopReason = "other"
)

// Request is a single-turn generation.
type Request struct {
	// Step labels the call for logs and metrics, e.g. "proposals".
	Step      string
	System    string
	User      string
	MaxTokens int
	// WebSearch enables the provider's hosted search tool when it has one.
	WebSearch bool
}

// Response is the generated text plus usage.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	StopReason   StopReason
	// CostUSD is filled by the pricing middleware.
	CostUSD float64
	Model   string
}

// Generator produces text.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Model() string
}

// Tier binds a provider model to its rates.
type Tier struct {
	Provider         string        `yaml:"provider" mapstructure:"provider"`
	Model            string        `yaml:"model" mapstructure:"model"`
	InputPerMillion  float64       `yaml:"input_per_million" mapstructure:"input_per_million"`
	OutputPerMillion float64       `yaml:"output_per_million" mapstructure:"output_per_million"`
	MaxTokens        int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Cost returns USD for the given token counts.
func (t Tier) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*t.InputPerMillion/1e6 + float64(outputTokens)*t.OutputPerMillion/1e6
}
