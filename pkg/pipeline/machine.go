// Package pipeline is the conversation state machine. Handle takes one
// inbound message, looks up the conversation's Task and runs the matching
// phase handler; handlers for one conversation never run concurrently (the
// dispatcher serializes them).
//
// Every handler captures the store generation it started from and writes
// back with SetIf/DeleteIf, so a cancel that lands while a step runs is never
// undone by the step's late result.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/agents/classify"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/agents/draft"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/agents/research"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/artifact"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/chat"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/estimate"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/session"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/status"
)

// Pipeline names used for metrics and artifact files.
const (
	PipelineResearch = string(estimate.KindResearch)
	PipelineDraft    = string(estimate.KindDraft)
)

// Poster is the outbound side; *chat.Service implements it.
type Poster interface {
	Post(ctx context.Context, channel, text, conversationID string)
	Upload(ctx context.Context, channel, path, caption, conversationID string)
}

// StepRecorder counts step outcomes; *metrics.Recorder implements it.
type StepRecorder interface {
	IncStep(pipeline, step, outcome string)
}

// Config wires a Machine. Steps may be nil.
type Config struct {
	Store      *session.Store
	Status     *status.Multiplexer
	Chat       Poster
	Classifier *classify.Classifier
	Draft      *draft.Agent
	Research   *research.Agent
	Estimator  *estimate.Estimator
	Artifacts  *artifact.Writer
	Tokens     Tokens
	USDToJPY   float64
	Steps      StepRecorder
}

// Machine runs phase transitions.
type Machine struct {
	store      *session.Store
	status     *status.Multiplexer
	chat       Poster
	classifier *classify.Classifier
	draft      *draft.Agent
	research   *research.Agent
	estimator  *estimate.Estimator
	artifacts  *artifact.Writer
	tokens     Tokens
	usdToJPY   float64
	steps      StepRecorder
	now        func() time.Time
	logger     *logx.Logger
}

// New returns a Machine.
func New(cfg Config) *Machine {
	return &Machine{
		store:      cfg.Store,
		status:     cfg.Status,
		chat:       cfg.Chat,
		classifier: cfg.Classifier,
		draft:      cfg.Draft,
		research:   cfg.Research,
		estimator:  cfg.Estimator,
		artifacts:  cfg.Artifacts,
		tokens:     cfg.Tokens,
		usdToJPY:   cfg.USDToJPY,
		steps:      cfg.Steps,
		now:        time.Now,
		logger:     logx.NewLogger("pipeline"),
	}
}

// Tokens returns the configured reply words.
func (m *Machine) Tokens() Tokens {
	return m.tokens
}

// turn is one message being handled.
type turn struct {
	channel string
	conv    string
	text    string
	gen     uint64
}

// Handle processes one message of a conversation.
func (m *Machine) Handle(ctx context.Context, ev chat.Event) {
	task, ok, gen := m.store.Snapshot(ev.ConversationID)
	t := turn{
		channel: ev.Channel,
		conv:    ev.ConversationID,
		text:    strings.TrimSpace(ev.Text),
		gen:     gen,
	}
	if ok && task.Channel != "" {
		t.channel = task.Channel
	}

	if !ok {
		m.handleIdle(ctx, t)
		return
	}
	if m.tokens.IsCancel(t.text) {
		m.Cancel(t.conv)
		m.post(ctx, t, MsgCancelled)
		return
	}

	m.logger.Debug("%s in %s: %q", t.conv, task.Phase(), t.text)
	switch p := task.Payload.(type) {
	case session.AwaitingTopic:
		m.confirmResearch(ctx, t, t.text)
	case session.AwaitingClarification:
		intent := m.classifyIntent(ctx, t, classify.Clarified(p.OriginalMessage, t.text))
		m.route(ctx, t, intent, p.OriginalMessage)
	case session.ConfirmResearch:
		m.handleConfirmResearch(ctx, t, p)
	case session.ConfirmDraft:
		m.handleConfirmDraft(ctx, t, p)
	case session.ProposalsPending:
		m.handleProposals(ctx, t, p)
	case session.ReviewPending:
		m.handleReview(ctx, t, p)
	default:
		m.logger.Error("%s has an unknown payload %T, clearing it", t.conv, p)
		m.Fail(ctx, ev)
	}
}

// Cancel clears the conversation unconditionally. It reports whether a
// Task existed. The generation bump makes any running handler's write-back
// fail.
func (m *Machine) Cancel(conv string) bool {
	existed := m.store.Delete(conv)
	m.status.Remove(conv)
	return existed
}

// Fail resets a conversation after an unexpected error and tells the user.
func (m *Machine) Fail(ctx context.Context, ev chat.Event) {
	m.store.Delete(ev.ConversationID)
	m.status.Remove(ev.ConversationID)
	m.chat.Post(ctx, ev.Channel, MsgFailed, ev.ConversationID)
}

func (m *Machine) handleIdle(ctx context.Context, t turn) {
	if m.tokens.IsHelp(t.text) {
		m.post(ctx, t, helpText(
			m.estimator.Estimate(ctx, estimate.KindResearch),
			m.estimator.Estimate(ctx, estimate.KindDraft),
		))
		return
	}
	intent := m.classifyIntent(ctx, t, t.text)
	if !m.store.Current(t.conv, t.gen) {
		return
	}
	m.route(ctx, t, intent, t.text)
}

// classifyIntent surfaces a model failure in the status log; the intent is then
// a generic question.
func (m *Machine) classifyIntent(ctx context.Context, t turn, text string) classify.Intent {
	intent := m.classifier.Classify(ctx, text)
	if intent.Err != nil {
		m.status.Logf("%s: intent classification failed: %v", t.conv, intent.Err)
	}
	return intent
}

// route acts on a classified intent. original is the first message of the
// request, kept across clarification rounds.
func (m *Machine) route(ctx context.Context, t turn, intent classify.Intent, original string) {
	switch intent.Action {
	case classify.ActionResearch:
		if classify.IsVagueTopic(intent.Topic, t.text) {
			if m.save(t, session.AwaitingTopic{}) {
				m.status.Upsert(t.conv, status.LabelAsking, "research topic", 0)
				m.post(ctx, t, MsgAskTopic)
			}
			return
		}
		m.confirmResearch(ctx, t, intent.Topic)

	case classify.ActionDraft:
		f := m.estimator.Estimate(ctx, estimate.KindDraft)
		if m.save(t, session.ConfirmDraft{Hint: intent.Hint}) {
			m.status.Upsert(t.conv, status.LabelConfirming, PipelineDraft, 0)
			m.post(ctx, t, confirmDraftText(intent.Hint, f))
		}

	case classify.ActionAsk:
		if m.save(t, session.AwaitingClarification{OriginalMessage: original}) {
			m.status.Upsert(t.conv, status.LabelAsking, "clarification", 0)
			m.post(ctx, t, intent.Question)
		}

	default:
		if _, err := m.store.DeleteIf(t.conv, t.gen); err == nil {
			m.status.Remove(t.conv)
		}
		m.post(ctx, t, intent.Reply)
	}
}

// save replaces the conversation's Task if nothing changed since the turn
// started. It reports false when the turn was overtaken.
func (m *Machine) save(t turn, p session.Payload) bool {
	if _, err := m.store.SetIf(t.conv, t.gen, session.Task{Channel: t.channel, Payload: p}); err != nil {
		m.logger.Info("%s changed while handling %q, dropping the update", t.conv, t.text)
		return false
	}
	return true
}

// finish removes the Task if the turn is still current.
func (m *Machine) finish(t turn) bool {
	if _, err := m.store.DeleteIf(t.conv, t.gen); err != nil {
		return false
	}
	m.status.Remove(t.conv)
	return true
}

// detach deletes the Task before a long run and returns the turn carrying
// the new generation. While detached the conversation shows only a status row.
func (m *Machine) detach(t turn) (turn, bool) {
	gen, err := m.store.DeleteIf(t.conv, t.gen)
	if err != nil {
		return t, false
	}
	t.gen = gen
	return t, true
}

func (m *Machine) current(t turn) bool {
	return m.store.Current(t.conv, t.gen)
}

func (m *Machine) post(ctx context.Context, t turn, text string) {
	m.chat.Post(ctx, t.channel, text, t.conv)
}

func (m *Machine) record(pipeline, step string, err error) {
	if m.steps == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.steps.IncStep(pipeline, step, outcome)
}

// aborted reports whether the message context ended. The dispatcher only
// does that when shutdown outlives its grace period.
func aborted(ctx context.Context) bool {
	return ctx.Err() != nil
}

func (m *Machine) jpy(usd float64) float64 {
	return usd * m.usdToJPY
}
