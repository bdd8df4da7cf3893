package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/agents/draft"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/artifact"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/estimate"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/extract"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/session"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/sheets"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/status"
)

func (m *Machine) handleConfirmDraft(ctx context.Context, t turn, p session.ConfirmDraft) {
	if ok, extra := m.tokens.Affirm(t.text); ok {
		m.runDraft(ctx, t, p, JoinHints(p.Hint, extra))
		return
	}
	if m.tokens.IsNo(t.text) {
		if m.finish(t) {
			m.post(ctx, t, MsgCancelled)
		}
		return
	}
	m.post(ctx, t, MsgConfirmReprompt)
}

// runDraft runs sheet read, web research and proposals. The Task is removed
// for the duration and comes back as ProposalsPending, or as the original
// ConfirmDraft when proposals fail so that yes retries.
func (m *Machine) runDraft(ctx context.Context, t turn, confirm session.ConfirmDraft, hint string) {
	t, ok := m.detach(t)
	if !ok {
		return
	}
	run := session.DraftRun{Hint: hint, Started: m.now()}
	if !m.announce(ctx, t, status.LabelRunning, "reading the sheet", 0, MsgReadingSheet) {
		return
	}

	past, err := m.draft.LoadPastData(ctx)
	switch {
	case err == nil:
	case aborted(ctx):
		return
	case errors.Is(err, sheets.ErrNotConfigured):
		m.post(ctx, t, "⚠️ No spreadsheet is configured, so the proposals will not follow past scripts.")
	default:
		m.logger.Warn("%s: past data: %v", t.conv, err)
		m.post(ctx, t, fmt.Sprintf("⚠️ Could not read the spreadsheet (%v). Continuing without past data.", err))
	}
	run.PastData = past

	if !m.announce(ctx, t, status.LabelRunning, "web research", 0, MsgWebResearch) {
		return
	}
	research, usd, err := m.draft.ResearchTrends(ctx, past, hint)
	m.record(PipelineDraft, "research", err)
	if err != nil {
		if aborted(ctx) {
			return
		}
		m.logger.Warn("%s: trend research skipped: %v", t.conv, err)
		m.post(ctx, t, fmt.Sprintf("⚠️ Web research failed, continuing without it (%v).", err))
	} else {
		run.Research = research
		run.Costs = run.Costs.Add(session.StepResearch, usd)
	}

	proposals, run, err := m.propose(ctx, t, run, MsgProposing)
	if err != nil {
		if m.gone(ctx, t) {
			return
		}
		text := fmt.Sprintf("❌ Could not generate proposals: %v\nReply *はい* to try again or *いいえ* to stop.", err)
		if m.save(t, confirm) {
			m.status.Upsert(t.conv, status.LabelConfirming, PipelineDraft, 0)
			m.post(ctx, t, text)
		}
		return
	}
	m.showProposals(ctx, t, run, proposals)
}

// propose announces note, generates proposals and charges their cost to run.
func (m *Machine) propose(ctx context.Context, t turn, run session.DraftRun, note string) ([]extract.Record, session.DraftRun, error) {
	if !m.announce(ctx, t, status.LabelRunning, "generating proposals", run.Costs.Total(), note) {
		return nil, run, context.Canceled
	}
	proposals, usd, err := m.draft.Proposals(ctx, run.PastData, run.Research, run.Hint)
	m.record(PipelineDraft, "proposals", err)
	if err != nil {
		return nil, run, err
	}
	run.Costs = run.Costs.Add(session.StepProposals, usd)
	return proposals, run, nil
}

func (m *Machine) showProposals(ctx context.Context, t turn, run session.DraftRun, proposals []extract.Record) {
	text := draft.FormatProposals(proposals)
	if !m.save(t, session.ProposalsPending{Run: run, Proposals: proposals}) {
		m.post(ctx, t, text+MsgStaleNote)
		return
	}
	m.status.Upsert(t.conv, status.LabelSelecting, "choose a proposal", run.Costs.Total())
	m.post(ctx, t, text)
}

func (m *Machine) handleProposals(ctx context.Context, t turn, p session.ProposalsPending) {
	if n, ok := Choice(t.text); ok {
		if n < 1 || n > len(p.Proposals) {
			m.post(ctx, t, fmt.Sprintf("Please choose a number from 1 to %d.", len(p.Proposals)))
			return
		}
		m.expand(ctx, t, p, n)
		return
	}

	run := p.Run
	run.Hint = JoinHints(p.Run.Hint, t.text)
	proposals, run, err := m.propose(ctx, t, run, MsgRegenerating)
	if err != nil {
		if m.gone(ctx, t) {
			return
		}
		m.progress(t, status.LabelSelecting, "choose a proposal", p.Run.Costs.Total())
		m.post(ctx, t, fmt.Sprintf("❌ Could not regenerate the proposals: %v\nThe previous proposals are still available.", err))
		return
	}
	m.showProposals(ctx, t, run, proposals)
}

func (m *Machine) expand(ctx context.Context, t turn, p session.ProposalsPending, n int) {
	if !m.announce(ctx, t, status.LabelRunning, fmt.Sprintf("expanding proposal %d", n), p.Run.Costs.Total(), fmt.Sprintf(MsgExpanding, n)) {
		return
	}
	selected := p.Proposals[n-1]
	full, usd, err := m.draft.Expand(ctx, selected, p.Run.PastData)
	m.record(PipelineDraft, "expand", err)
	if err != nil {
		if aborted(ctx) {
			return
		}
		m.progress(t, status.LabelSelecting, "choose a proposal", p.Run.Costs.Total())
		m.post(ctx, t, fmt.Sprintf("❌ Could not write proposal %d: %v\nChoose a number again or send *キャンセル*.", n, err))
		return
	}

	run := p.Run
	run.Costs = run.Costs.Add(session.StepExpand, usd)
	header := run.PastData.Header
	review := session.ReviewPending{
		Run:       run,
		Proposals: p.Proposals,
		Selected:  n,
		Topic:     draft.Topic(full, n),
		Outline:   "## Selected proposal\n\n" + draft.FormatDisplay(selected, header),
		Draft:     full,
		Display:   draft.FormatDisplay(full, header),
	}
	text := fmt.Sprintf("✅ *Proposal %d selected*\n\n%s\n\n%s", n, draft.ExpandPreview(review.Display), reviewFooter)
	if !m.save(t, review) {
		m.post(ctx, t, text+MsgStaleNote)
		return
	}
	m.status.Upsert(t.conv, status.LabelReviewing, review.Topic, run.Costs.Total())
	m.post(ctx, t, text)
}

func (m *Machine) handleReview(ctx context.Context, t turn, p session.ReviewPending) {
	switch {
	case m.tokens.IsFinalize(t.text):
		m.finalize(ctx, t, p)
	case m.tokens.IsGoBack(t.text):
		m.goBack(ctx, t, p)
	default:
		m.revise(ctx, t, p)
	}
}

// goBack re-shows the proposals kept in the review state without generating.
func (m *Machine) goBack(ctx context.Context, t turn, p session.ReviewPending) {
	if len(p.Proposals) == 0 {
		m.finish(t)
		m.post(ctx, t, MsgNoProposals)
		return
	}
	if m.save(t, session.ProposalsPending{Run: p.Run, Proposals: p.Proposals}) {
		m.status.Upsert(t.conv, status.LabelSelecting, "choose a proposal", p.Run.Costs.Total())
		m.post(ctx, t, draft.FormatProposals(p.Proposals))
	}
}

func (m *Machine) revise(ctx context.Context, t turn, p session.ReviewPending) {
	if !m.announce(ctx, t, status.LabelRunning, "revising", p.Run.Costs.Total(), MsgRevising) {
		return
	}
	revised, usd, err := m.draft.Revise(ctx, p.Topic, p.Draft, t.text)
	m.record(PipelineDraft, "revise", err)
	if err != nil {
		if aborted(ctx) {
			return
		}
		m.progress(t, status.LabelReviewing, p.Topic, p.Run.Costs.Total())
		m.post(ctx, t, fmt.Sprintf("❌ Revision failed: %v\nThe previous draft is kept.", err))
		return
	}

	next := p
	next.Run.Costs = p.Run.Costs.Add(session.StepRevise, usd)
	next.Draft = revised
	next.Display = draft.FormatDisplay(revised, p.Run.PastData.Header)
	text := "🔄 *Revised*\n\n" + draft.RevisePreview(next.Display) + "\n\n" + reviseFooter
	if !m.save(t, next) {
		m.post(ctx, t, text+MsgStaleNote)
		return
	}
	m.status.Upsert(t.conv, status.LabelReviewing, next.Topic, next.Run.Costs.Total())
	m.post(ctx, t, text)
}

// finalize writes the sheet row, the artifact and the history record, then
// clears the conversation. Failures of the sheet or the file are reported in
// the summary and do not stop the others.
func (m *Machine) finalize(ctx context.Context, t turn, p session.ReviewPending) {
	if !m.announce(ctx, t, status.LabelRunning, "saving", p.Run.Costs.Total(), MsgSaving) {
		return
	}
	link, sheetErr := m.draft.WriteRow(ctx, p.Draft)
	m.record(PipelineDraft, "write_row", sheetErr)
	if sheetErr != nil && aborted(ctx) {
		return
	}

	elapsed := m.now().Sub(p.Run.Started)
	total := p.Run.Costs.Total()
	path, fileErr := m.artifacts.Write(PipelineDraft, artifact.Document{
		Title:   "SNS draft: " + p.Topic,
		Outline: p.Outline,
		Body:    p.Display,
		Elapsed: elapsed,
		CostUSD: total,
		CostJPY: m.jpy(total),
		Link:    link,
	})
	if fileErr != nil {
		m.logger.Error("%s: write artifact: %v", t.conv, fileErr)
		m.status.Logf("%s: could not write the draft file: %v", t.conv, fileErr)
	}
	m.recordHistory(ctx, estimate.KindDraft, p.Topic, elapsed.Seconds(), total)
	stale := !m.finish(t)

	var b strings.Builder
	fmt.Fprintf(&b, "🎉 *Draft finalized: %s*\n\n", p.Topic)
	fmt.Fprintf(&b, "⏱ Elapsed: %s\n", artifact.FormatElapsed(elapsed))
	fmt.Fprintf(&b, "💰 Total cost: $%.4f (about %.1f JPY)", total, m.jpy(total))
	b.WriteString(costBreakdown(p.Run.Costs, m.usdToJPY))
	b.WriteString("\n\n")
	switch {
	case sheetErr == nil:
		fmt.Fprintf(&b, "📊 Saved to the spreadsheet: %s", link)
	case errors.Is(sheetErr, sheets.ErrNotConfigured):
		b.WriteString("⚠️ No spreadsheet is configured, so the row was not saved.")
	default:
		fmt.Fprintf(&b, "⚠️ Could not save to the spreadsheet: %v", sheetErr)
	}
	if fileErr != nil {
		fmt.Fprintf(&b, "\n⚠️ Could not write the output file: %v", fileErr)
	}
	if stale {
		b.WriteString(MsgStaleNote)
	}
	m.deliver(ctx, t, path, b.String())
}

// deliver uploads the artifact with summary as its caption, or posts the
// summary alone when there is no file.
func (m *Machine) deliver(ctx context.Context, t turn, path, summary string) {
	if path == "" {
		m.post(ctx, t, summary)
		return
	}
	m.chat.Upload(ctx, t.channel, path, summary, t.conv)
}

func (m *Machine) recordHistory(ctx context.Context, kind estimate.Kind, topic string, seconds, usd float64) {
	err := m.estimator.Record(ctx, kind, estimate.Record{
		Timestamp:      m.now(),
		Topic:          topic,
		ElapsedSeconds: seconds,
		CostUSD:        usd,
		CostJPY:        m.jpy(usd),
	})
	if err != nil {
		m.logger.Warn("record %s history: %v", kind, err)
	}
}

// gone reports whether the turn no longer owns the conversation, either
// because its message was cancelled or because the Task changed.
func (m *Machine) gone(ctx context.Context, t turn) bool {
	return aborted(ctx) || !m.current(t)
}

// progress updates the status row if the turn is still current and reports
// whether it was.
func (m *Machine) progress(t turn, label, step string, usd float64) bool {
	if !m.current(t) {
		return false
	}
	m.status.Upsert(t.conv, label, step, usd)
	return true
}

// announce is progress that also posts text to the thread.
func (m *Machine) announce(ctx context.Context, t turn, label, step string, usd float64, text string) bool {
	if !m.progress(t, label, step, usd) {
		return false
	}
	m.post(ctx, t, text)
	return true
}
