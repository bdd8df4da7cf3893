// Package session holds per-conversation pipeline state.
//
// A conversation has at most one Task. Between the confirmation and the
// first result of a pipeline the conversation has no Task and the status
// multiplexer shows it as running; later steps (expand, revise, finalize)
// run with the Task still stored and write back against its generation.
package session

import (
	"time"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/extract"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/sheets"
)

// Phase names the state a Task is waiting in.
type Phase string

const (
	PhaseIdle                  Phase = "idle"
	PhaseRunning               Phase = "running"
	PhaseAwaitingTopic         Phase = "awaiting_topic"
	PhaseAwaitingClarification Phase = "awaiting_clarification"
	PhaseConfirmResearch       Phase = "confirm_research"
	PhaseConfirmDraft          Phase = "confirm_draft"
	PhaseProposalsPending      Phase = "proposals_pending"
	PhaseReviewPending         Phase = "review_pending"
)

// Payload is implemented only by the phase structs in this package.
type Payload interface {
	phase() Phase
}

// Task is the stored state of one conversation.
type Task struct {
	Channel string
	Payload Payload
}

// Phase derives the phase from the payload type.
func (t Task) Phase() Phase {
	if t.Payload == nil {
		return PhaseIdle
	}
	return t.Payload.phase()
}

// AwaitingTopic: a research request came without a usable topic.
type AwaitingTopic struct{}

// AwaitingClarification: the classifier asked the user a question.
type AwaitingClarification struct {
	OriginalMessage string
}

// ConfirmResearch: waiting for yes/no before running research on Topic.
type ConfirmResearch struct {
	Topic string
}

// ConfirmDraft: waiting for yes/no before running the draft pipeline.
type ConfirmDraft struct {
	Hint string
}

// DraftRun is what every draft phase after confirmation carries forward.
type DraftRun struct {
	PastData sheets.Table
	Research string
	Hint     string
	Started  time.Time
	Costs    CostLedger
}

// ProposalsPending: proposals are shown, waiting for a number or a new hint.
type ProposalsPending struct {
	Run       DraftRun
	Proposals []extract.Record
}

// ReviewPending: an expanded draft is shown, waiting for finalize, go-back
// or revision feedback. Proposals are kept so go-back needs no model call.
type ReviewPending struct {
	Run       DraftRun
	Proposals []extract.Record
	Selected  int
	Topic     string
	Outline   string
	Draft     extract.Record
	Display   string
}

func (AwaitingTopic) phase() Phase         { return PhaseAwaitingTopic }
func (AwaitingClarification) phase() Phase { return PhaseAwaitingClarification }
func (ConfirmResearch) phase() Phase       { return PhaseConfirmResearch }
func (ConfirmDraft) phase() Phase          { return PhaseConfirmDraft }
func (ProposalsPending) phase() Phase      { return PhaseProposalsPending }
func (ReviewPending) phase() Phase         { return PhaseReviewPending }
