package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/artifact"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/estimate"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/session"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/status"
)

// confirmResearch shows the estimate for topic and waits for yes/no.
func (m *Machine) confirmResearch(ctx context.Context, t turn, topic string) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		if m.save(t, session.AwaitingTopic{}) {
			m.status.Upsert(t.conv, status.LabelAsking, "research topic", 0)
			m.post(ctx, t, MsgAskTopic)
		}
		return
	}
	f := m.estimator.Estimate(ctx, estimate.KindResearch)
	if m.save(t, session.ConfirmResearch{Topic: topic}) {
		m.status.Upsert(t.conv, status.LabelConfirming, "research: "+topic, 0)
		m.post(ctx, t, confirmResearchText(topic, f))
	}
}

func (m *Machine) handleConfirmResearch(ctx context.Context, t turn, p session.ConfirmResearch) {
	if m.tokens.IsNo(t.text) {
		if m.finish(t) {
			m.post(ctx, t, MsgCancelled)
		}
		return
	}
	if ok, extra := m.tokens.Affirm(t.text); ok {
		topic := p.Topic
		if extra != "" {
			topic += " " + extra
		}
		m.runResearch(ctx, t, topic)
		return
	}
	m.confirmResearch(ctx, t, t.text)
}

func (m *Machine) runResearch(ctx context.Context, t turn, topic string) {
	t, ok := m.detach(t)
	if !ok {
		return
	}
	runID := uuid.NewString()[:8]
	m.logger.Info("research run %s for %s: %q", runID, t.conv, topic)
	if !m.announce(ctx, t, status.LabelRunning, "research: "+topic, 0, fmt.Sprintf(MsgResearchStarts, topic)) {
		return
	}

	res, err := m.research.Run(ctx, topic)
	m.record(PipelineResearch, "run", err)
	if err != nil {
		if aborted(ctx) {
			return
		}
		m.logger.Error("research run %s failed: %v", runID, err)
		m.status.Logf("%s: research failed: %v", t.conv, err)
		text := fmt.Sprintf("❌ Research failed: %v", err)
		if m.current(t) {
			m.status.Remove(t.conv)
		} else {
			text += MsgStaleNote
		}
		m.post(ctx, t, text)
		return
	}

	path, fileErr := m.artifacts.Write(PipelineResearch, artifact.Document{
		Body:    res.Report,
		Elapsed: res.Elapsed,
		CostUSD: res.CostUSD,
		CostJPY: m.jpy(res.CostUSD),
	})
	if fileErr != nil {
		m.logger.Error("research run %s: write artifact: %v", runID, fileErr)
		m.status.Logf("%s: could not write the research report: %v", t.conv, fileErr)
	}
	m.recordHistory(ctx, estimate.KindResearch, topic, res.Elapsed.Seconds(), res.CostUSD)

	var b strings.Builder
	fmt.Fprintf(&b, "✅ *Research complete: %s*\n\n", topic)
	fmt.Fprintf(&b, "⏱ Elapsed: %s\n", artifact.FormatElapsed(res.Elapsed))
	fmt.Fprintf(&b, "💰 Cost: $%.4f (about %.1f JPY)", res.CostUSD, m.jpy(res.CostUSD))
	if res.Partial() {
		b.WriteString("\n\n⚠️ Some stages failed, so the report is partial:")
		for _, w := range res.Warnings {
			b.WriteString("\n• " + w)
		}
	}
	if fileErr != nil {
		fmt.Fprintf(&b, "\n\n⚠️ Could not write the report file (%v). The report follows.\n\n%s", fileErr, res.Report)
	}
	if m.current(t) {
		m.status.Remove(t.conv)
	} else {
		b.WriteString(MsgStaleNote)
	}
	m.deliver(ctx, t, path, b.String())
}
