// Package research runs the staged research pipeline: a trend survey and a
// keyword analysis in parallel (both with web search), then a content
// strategy built from the two, assembled into one markdown report.
package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/templates"
)

// Stage names, also used as llm.Request.Step.
const (
	StageTrends   = "research_trends"
	StageKeywords = "research_keywords"
	StageStrategy = "research_strategy"
)

// Result is a finished run. A run with Warnings produced a partial report.
type Result struct {
	Topic    string
	Report   string
	CostUSD  float64
	Elapsed  time.Duration
	Warnings []string
}

// Partial reports whether some stage failed.
func (r Result) Partial() bool {
	return len(r.Warnings) > 0
}

// Agent runs research with one generator and a wall-clock budget.
type Agent struct {
	gen     llm.Generator
	prompts *templates.Renderer
	system  string
	budget  time.Duration
	now     func() time.Time
	logger  *logx.Logger
}

// New returns an Agent. A zero budget means no limit beyond ctx.
func New(gen llm.Generator, prompts *templates.Renderer, budget time.Duration) (*Agent, error) {
	system, err := prompts.Render(templates.ResearchSystem, nil)
	if err != nil {
		return nil, err
	}
	return &Agent{
		gen:     gen,
		prompts: prompts,
		system:  system,
		budget:  budget,
		now:     time.Now,
		logger:  logx.NewLogger("research"),
	}, nil
}

type topicData struct {
	Topic string
}

type strategyData struct {
	Topic    string
	Trends   string
	Keywords string
}

type reportData struct {
	Topic    string
	Date     string
	Trends   string
	Keywords string
	Strategy string
	Warnings []string
}

type stage struct {
	name string
	text string
	cost float64
	err  error
}

// Run researches topic. It fails only when neither survey produced
// anything; later failures leave a partial report with Warnings. Cost
// covers every stage that returned.
func (a *Agent) Run(ctx context.Context, topic string) (Result, error) {
	start := a.now()
	if a.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.budget)
		defer cancel()
	}
	res := Result{Topic: topic}

	p := pool.NewWithResults[stage]()
	p.Go(func() stage {
		return a.stage(ctx, StageTrends, templates.ResearchScan, topicData{Topic: topic}, true)
	})
	p.Go(func() stage {
		return a.stage(ctx, StageKeywords, templates.ResearchKeywords, topicData{Topic: topic}, true)
	})
	scans := p.Wait()

	texts := make(map[string]string, 3)
	var errs []error
	for _, s := range scans {
		res.CostUSD += s.cost
		if s.err != nil {
			errs = append(errs, s.err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s failed: %v", s.name, s.err))
			continue
		}
		texts[s.name] = s.text
	}
	if len(errs) == len(scans) {
		res.Elapsed = a.now().Sub(start)
		return res, fmt.Errorf("research %q: %w", topic, errors.Join(errs...))
	}

	strategy := a.stage(ctx, StageStrategy, templates.ResearchStrategy, strategyData{
		Topic:    topic,
		Trends:   orMissing(texts[StageTrends]),
		Keywords: orMissing(texts[StageKeywords]),
	}, false)
	res.CostUSD += strategy.cost
	if strategy.err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s failed: %v", strategy.name, strategy.err))
	} else {
		texts[StageStrategy] = strategy.text
	}

	report, err := a.prompts.Render(templates.ResearchReport, reportData{
		Topic:    topic,
		Date:     start.Format("2006-01-02"),
		Trends:   orMissing(texts[StageTrends]),
		Keywords: orMissing(texts[StageKeywords]),
		Strategy: orMissing(texts[StageStrategy]),
		Warnings: res.Warnings,
	})
	if err != nil {
		return res, err
	}
	res.Report = report
	res.Elapsed = a.now().Sub(start)
	if res.Partial() {
		a.logger.Warn("research %q finished with %d failed stage(s)", topic, len(res.Warnings))
	}
	return res, nil
}

func (a *Agent) stage(ctx context.Context, name string, tmpl templates.Name, data any, search bool) stage {
	prompt, err := a.prompts.Render(tmpl, data)
	if err != nil {
		return stage{name: name, err: err}
	}
	if err := ctx.Err(); err != nil {
		return stage{name: name, err: err}
	}
	resp, err := a.gen.Generate(ctx, llm.Request{
		Step:      name,
		System:    a.system,
		User:      prompt,
		WebSearch: search,
	})
	if err != nil {
		return stage{name: name, err: err}
	}
	if resp.StopReason == llm.StopTruncated {
		a.logger.Warn("%s output hit the token limit", name)
	}
	return stage{name: name, text: resp.Text, cost: resp.CostUSD}
}

func orMissing(s string) string {
	if s == "" {
		return "(not available)"
	}
	return s
}
