// Package draft implements the steps of the script draft pipeline: past data
// from the sheet, web trend research, proposals, expansion, revision and the
// final sheet row.
//
// Every generation step returns the USD it cost. A step that returns an
// error cost nothing the caller has to account for.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/extract"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/sheets"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/templates"
)

// Output budgets per call.
const (
	ProposalsMaxTokens = 4000
	ExpandMaxTokens    = 6000
	ReviseMaxTokens    = 4000
	TrendsMaxTokens    = 2000

	// ResearchExcerptTokens caps how much trend research goes into the
	// proposals prompt.
	ResearchExcerptTokens = 2000
)

// DateLayout is how the posting date column is filled.
const DateLayout = "2006-01-02 15:04"

// ErrNoHeader means the sheet has no header row to map the draft onto.
var ErrNoHeader = errors.New("sheet has no header row")

// Agent runs the draft steps.
type Agent struct {
	writer  llm.Generator
	trends  llm.Generator
	store   sheets.Store
	prompts *templates.Renderer
	tokens  *llm.TokenCounter
	system  string
	count   int
	now     func() time.Time
	logger  *logx.Logger
}

// New returns an Agent. writer handles proposals, expansion and revision;
// trends runs the web research step. count is the number of proposals.
func New(writer, trends llm.Generator, store sheets.Store, prompts *templates.Renderer, count int) (*Agent, error) {
	system, err := prompts.Render(templates.DraftSystem, nil)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 4
	}
	return &Agent{
		writer:  writer,
		trends:  trends,
		store:   store,
		prompts: prompts,
		tokens:  llm.NewTokenCounter(),
		system:  system,
		count:   count,
		now:     time.Now,
		logger:  logx.NewLogger("draft"),
	}, nil
}

// ProposalCount is how many proposals each generation asks for.
func (a *Agent) ProposalCount() int {
	return a.count
}

// SheetURL links to the draft sheet, "" when unknown.
func (a *Agent) SheetURL() string {
	return a.store.URL()
}

// LoadPastData reads the sheet and keeps the most recent rows. The error is
// sheets.ErrNotConfigured when no sheet is set up; callers continue with an
// empty table either way.
func (a *Agent) LoadPastData(ctx context.Context) (sheets.Table, error) {
	t, err := a.store.ReadAll(ctx)
	if err != nil {
		return sheets.Table{}, err
	}
	t = t.Tail(PastRows)
	a.logger.Debug("past data (%d rows):\n%s", len(t.Rows), Summary(t))
	return t, nil
}

type trendsData struct {
	Existing []string
	Hint     string
	Year     int
}

// ResearchTrends asks the trends model, with web search, for formats the
// client has not used yet. When the search call fails it retries once
// without tools.
func (a *Agent) ResearchTrends(ctx context.Context, past sheets.Table, hint string) (string, float64, error) {
	prompt, err := a.prompts.Render(templates.TrendsTemplate, trendsData{
		Existing: ExistingTopics(past),
		Hint:     hint,
		Year:     a.now().Year(),
	})
	if err != nil {
		return "", 0, err
	}
	req := llm.Request{Step: "research", User: prompt, MaxTokens: TrendsMaxTokens, WebSearch: true}

	resp, err := a.trends.Generate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		a.logger.Warn("web search research failed, retrying without tools: %v", err)
		req.WebSearch = false
		resp, err = a.trends.Generate(ctx, req)
		if err != nil {
			return "", 0, fmt.Errorf("trend research: %w", err)
		}
	}
	a.warnTruncated("research", resp)
	return resp.Text, resp.CostUSD, nil
}

type proposalsData struct {
	Research string
	Hint     string
	Columns  []string
	Samples  string
	Count    int
}

// Proposals generates the proposal summaries. Malformed output still yields
// ProposalCount placeholder records.
func (a *Agent) Proposals(ctx context.Context, past sheets.Table, research, hint string) ([]extract.Record, float64, error) {
	cols := SummaryColumns(past.Header)
	prompt, err := a.prompts.Render(templates.ProposalsTemplate, proposalsData{
		Research: a.tokens.Truncate(research, ResearchExcerptTokens),
		Hint:     hint,
		Columns:  cols,
		Samples:  Samples(past, cols, 150, ""),
		Count:    a.count,
	})
	if err != nil {
		return nil, 0, err
	}
	resp, err := a.writer.Generate(ctx, llm.Request{
		Step:      "proposals",
		System:    a.system,
		User:      prompt,
		MaxTokens: ProposalsMaxTokens,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("generate proposals: %w", err)
	}
	a.warnTruncated("proposals", resp)
	return extract.Array(resp.Text, a.count), resp.CostUSD, nil
}

type expandData struct {
	Summary        string
	Columns        []string
	Sections       []string
	SectionLengths string
	Samples        string
}

// Expand writes the full row for proposal. The proposal's own fields are
// kept under whatever the model returns.
func (a *Agent) Expand(ctx context.Context, proposal extract.Record, past sheets.Table) (extract.Record, float64, error) {
	var summary []string
	for _, k := range orderedKeys(proposal, past.Header) {
		if v := proposal.String(k); v != "" && !strings.Contains(k, sectionMarker) {
			summary = append(summary, fmt.Sprintf("  %s: %s", k, v))
		}
	}
	prompt, err := a.prompts.Render(templates.ExpandTemplate, expandData{
		Summary:        strings.Join(summary, "\n"),
		Columns:        GeneratedColumns(past.Header),
		Sections:       SectionColumns(past.Header),
		SectionLengths: SectionLengths(past),
		Samples:        Samples(past, past.Header, 200, "..."),
	})
	if err != nil {
		return nil, 0, err
	}
	resp, err := a.writer.Generate(ctx, llm.Request{
		Step:      "expand",
		System:    a.system,
		User:      prompt,
		MaxTokens: ExpandMaxTokens,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("expand proposal: %w", err)
	}
	a.warnTruncated("expand", resp)
	structured := extract.Object(resp.Text, proposal.String(ColSummary))
	if extract.IsFallback(structured, resp.Text) {
		a.logger.Warn("expand reply was not JSON, keeping the raw text in %s", extract.FirstSectionColumn)
	}
	return extract.Merge(proposal, structured), resp.CostUSD, nil
}

type reviseData struct {
	Topic     string
	DraftJSON string
	Feedback  string
}

// Revise applies feedback to current. When the answer lacks the first
// script section the previous fields are kept underneath it.
func (a *Agent) Revise(ctx context.Context, topic string, current extract.Record, feedback string) (extract.Record, float64, error) {
	body, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return nil, 0, fmt.Errorf("encode draft: %w", err)
	}
	prompt, err := a.prompts.Render(templates.ReviseTemplate, reviseData{
		Topic:     topic,
		DraftJSON: string(body),
		Feedback:  feedback,
	})
	if err != nil {
		return nil, 0, err
	}
	resp, err := a.writer.Generate(ctx, llm.Request{
		Step:      "revise",
		System:    a.system,
		User:      prompt,
		MaxTokens: ReviseMaxTokens,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("revise draft: %w", err)
	}
	a.warnTruncated("revise", resp)
	revised := extract.Object(resp.Text, topic)
	if revised.String(extract.FirstSectionColumn) == "" && current.String(extract.FirstSectionColumn) != "" {
		revised = extract.Merge(current, revised)
	}
	return revised, resp.CostUSD, nil
}

// WriteRow appends rec to the sheet under the current header and returns
// the sheet link.
func (a *Agent) WriteRow(ctx context.Context, rec extract.Record) (string, error) {
	t, err := a.store.ReadAll(ctx)
	if err != nil {
		return "", err
	}
	if len(t.Header) == 0 {
		return "", ErrNoHeader
	}
	row := BuildRow(t.Header, rec, len(t.Rows)+1, a.now())
	if err := a.store.Append(ctx, row); err != nil {
		return "", fmt.Errorf("append row: %w", err)
	}
	return a.store.URL(), nil
}

// BuildRow maps rec onto header. number counts existing rows including the
// header, so the first data row is number 1.
func BuildRow(header []string, rec extract.Record, number int, now time.Time) []string {
	row := make([]string, len(header))
	for i, h := range header {
		switch h {
		case ColNumber:
			row[i] = strconv.Itoa(number)
		case ColDate:
			row[i] = now.Format(DateLayout)
		case ColRefURL:
			row[i] = ""
		default:
			row[i] = rec.String(h)
		}
	}
	return row
}

func (a *Agent) warnTruncated(step string, resp llm.Response) {
	if resp.StopReason == llm.StopTruncated {
		a.logger.Warn("%s output hit the token limit (%d output tokens), JSON may be cut", step, resp.OutputTokens)
	}
}
