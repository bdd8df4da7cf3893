// Package retry retries failed generations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/llmerrors"
)

// Config controls backoff.
type Config struct {
	MaxAttempts   int           `yaml:"max_attempts" mapstructure:"max_attempts"` // including the first
	InitialDelay  time.Duration `yaml:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" mapstructure:"backoff_factor"`
	Jitter        bool          `yaml:"jitter" mapstructure:"jitter"`
}

// DefaultConfig suits interactive chat latency.
var DefaultConfig = Config{
	MaxAttempts:   3,
	InitialDelay:  time.Second,
	MaxDelay:      20 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier decides whether err is worth another attempt.
type Classifier func(error) bool

// ShouldRetry retries classified retryable errors, never cancellations.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return llmerrors.Classify(err).IsRetryable()
}

// Policy pairs a Config with a Classifier.
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy returns a Policy; a nil classifier means ShouldRetry.
func NewPolicy(cfg Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Policy{Config: cfg, Classifier: classifier}
}

// CalculateDelay returns the wait before the given attempt (1-based).
// Attempt 1 never waits; attempt 2 waits InitialDelay; later ones grow by
// BackoffFactor up to MaxDelay, with up to ±10% jitter.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))
	if p.Config.MaxDelay > 0 && delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}
	if p.Config.Jitter && delay > 0 {
		delay += time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))
	}
	return delay
}

// ShouldRetry applies the classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}
