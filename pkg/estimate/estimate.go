// Package estimate forecasts pipeline duration and cost from past runs.
package estimate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
)

// Kind names a pipeline; each kind has its own history.
type Kind string

const (
	KindResearch Kind = "research"
	KindDraft    Kind = "mk_draft"
)

// Record is one completed (or billed but failed) run. Records are only appended.
type Record struct {
	Timestamp      time.Time `json:"timestamp"`
	Topic          string    `json:"topic"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	CostUSD        float64   `json:"cost_usd"`
	CostJPY        float64   `json:"cost_jpy"`
}

// Log is the append-only history store.
type Log interface {
	Load(ctx context.Context, kind Kind) ([]Record, error)
	Append(ctx context.Context, kind Kind, rec Record) error
}

// Basis says what a forecast was derived from.
type Basis int

const (
	NoHistory Basis = iota
	PreviousRun
	PastRuns
)

// Range is an inclusive minute and JPY range.
type Range struct {
	MinutesLow  int `yaml:"minutes_low" mapstructure:"minutes_low"`
	MinutesHigh int `yaml:"minutes_high" mapstructure:"minutes_high"`
	CostLow     int `yaml:"cost_low" mapstructure:"cost_low"`
	CostHigh    int `yaml:"cost_high" mapstructure:"cost_high"`
}

// Forecast is what the confirmation prompt shows.
type Forecast struct {
	Range
	Basis Basis
	Runs  int
}

// TimeText renders the duration, e.g. "13-18 min" or "about 10 min".
func (f Forecast) TimeText() string {
	if f.MinutesLow == f.MinutesHigh {
		return fmt.Sprintf("about %d min", f.MinutesLow)
	}
	return fmt.Sprintf("%d-%d min", f.MinutesLow, f.MinutesHigh)
}

// CostText renders the cost, e.g. "about 21-42 JPY".
func (f Forecast) CostText() string {
	if f.CostLow == f.CostHigh {
		return fmt.Sprintf("about %d JPY", f.CostLow)
	}
	return fmt.Sprintf("about %d-%d JPY", f.CostLow, f.CostHigh)
}

// Note explains the basis.
func (f Forecast) Note() string {
	switch f.Basis {
	case PreviousRun:
		return "based on the previous run"
	case PastRuns:
		return fmt.Sprintf("based on %d past runs", f.Runs)
	default:
		return "first run, rough estimate"
	}
}

// DefaultRanges are used for kinds without history.
var DefaultRanges = map[Kind]Range{
	KindResearch: {MinutesLow: 5, MinutesHigh: 15, CostLow: 30, CostHigh: 70},
	KindDraft:    {MinutesLow: 5, MinutesHigh: 10, CostLow: 10, CostHigh: 30},
}

// Estimator combines a Log with per-kind defaults.
type Estimator struct {
	log      Log
	defaults map[Kind]Range
	logger   *logx.Logger
}

// NewEstimator returns an Estimator; nil defaults means DefaultRanges.
func NewEstimator(log Log, defaults map[Kind]Range) *Estimator {
	if defaults == nil {
		defaults = DefaultRanges
	}
	return &Estimator{log: log, defaults: defaults, logger: logx.NewLogger("estimate")}
}

// Estimate forecasts the next run of kind. A history read failure is
// logged and treated as no history.
func (e *Estimator) Estimate(ctx context.Context, kind Kind) Forecast {
	records, err := e.log.Load(ctx, kind)
	if err != nil {
		e.logger.Warn("history for %s unavailable, using defaults: %v", kind, err)
		records = nil
	}
	return Compute(records, e.defaults[kind])
}

// Record appends a finished run to the history.
func (e *Estimator) Record(ctx context.Context, kind Kind, rec Record) error {
	if err := e.log.Append(ctx, kind, rec); err != nil {
		return fmt.Errorf("append %s history: %w", kind, err)
	}
	e.logger.Info("recorded %s run: %.0fs, %.2f JPY", kind, rec.ElapsedSeconds, rec.CostJPY)
	return nil
}

// History returns the raw records of kind.
func (e *Estimator) History(ctx context.Context, kind Kind) ([]Record, error) {
	return e.log.Load(ctx, kind)
}

// Compute derives a forecast from records. With two or more records the
// range is [max(1, m-2), m+3] minutes around the mean m and
// [max(1, 0.7c), 1.4c] JPY around the mean cost c.
func Compute(records []Record, fallback Range) Forecast {
	switch n := len(records); {
	case n == 0:
		return Forecast{Range: fallback, Basis: NoHistory}
	case n == 1:
		mins := int(records[0].ElapsedSeconds / 60)
		jpy := int(records[0].CostJPY)
		return Forecast{
			Range: Range{MinutesLow: mins, MinutesHigh: mins, CostLow: jpy, CostHigh: jpy},
			Basis: PreviousRun,
			Runs:  1,
		}
	default:
		var secs, jpy float64
		for _, r := range records {
			secs += r.ElapsedSeconds
			jpy += r.CostJPY
		}
		meanSecs := secs / float64(n)
		meanJPY := jpy / float64(n)
		mins := int(math.Floor(meanSecs / 60))
		return Forecast{
			Range: Range{
				MinutesLow:  max(1, mins-2),
				MinutesHigh: mins + 3,
				CostLow:     max(1, int(meanJPY*0.7)),
				CostHigh:    int(meanJPY * 1.4),
			},
			Basis: PastRuns,
			Runs:  n,
		}
	}
}
