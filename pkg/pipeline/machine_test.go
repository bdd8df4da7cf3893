package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/agents/classify"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/agents/draft"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/agents/research"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/artifact"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/chat"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/chat/chattest"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/config"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/estimate"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/extract"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/llmtest"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/session"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/sheets"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/status"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/templates"
)

const conv = "C1:1700000000.000100"

var sheetHeader = []string{
	draft.ColNumber, draft.ColDate, draft.ColMedium, draft.ColFormat, draft.ColSummary,
	draft.ColHookOpen, "台本セクション1", "台本セクション2", draft.ColRefURL,
}

type stepCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (s *stepCounter) IncStep(pipeline, step, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[string]int)
	}
	s.counts[pipeline+"/"+step+"/"+outcome]++
}

func (s *stepCounter) get(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}

// lineRecorder collects status log lines.
type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) OnUpdate(status.Change, []status.Row) {}

func (r *lineRecorder) OnLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

type harness struct {
	m         *Machine
	store     *session.Store
	status    *status.Multiplexer
	chat      *chattest.Recorder
	classify  *llmtest.Fake
	writer    *llmtest.Fake
	trends    *llmtest.Fake
	research  *llmtest.Fake
	sheet     *sheets.MemoryStore
	fs        afero.Fs
	estimator *estimate.Estimator
	steps     *stepCounter
	lines     *lineRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	lines := &lineRecorder{}
	h := &harness{
		store:    session.NewStore(),
		status:   status.New(lines),
		lines:    lines,
		chat:     chattest.New(),
		classify: llmtest.New("haiku"),
		writer:   llmtest.New("haiku"),
		trends:   llmtest.New("sonnet"),
		research: llmtest.New("sonnet"),
		fs:       afero.NewMemMapFs(),
		steps:    &stepCounter{},
	}
	table := sheets.Table{Header: sheetHeader}
	for i := 1; i <= 3; i++ {
		table.Rows = append(table.Rows, []string{
			fmt.Sprint(i), "2026-01-01 10:00", "TikTok", "ルーティン", fmt.Sprintf("過去企画%d", i),
			"冒頭で質問", "本文", "締め", "",
		})
	}
	h.sheet = sheets.NewMemory(table, "https://sheets.example/abc")
	h.estimator = estimate.NewEstimator(estimate.NewFileLog(h.fs, "history"), nil)

	prompts := templates.MustRenderer()
	cls, err := classify.New(h.classify, prompts)
	require.NoError(t, err)
	drafts, err := draft.New(h.writer, h.trends, h.sheet, prompts, 4)
	require.NoError(t, err)
	res, err := research.New(h.research, prompts, time.Minute)
	require.NoError(t, err)

	h.m = New(Config{
		Store:      h.store,
		Status:     h.status,
		Chat:       chat.NewService(h.chat, chat.WithScanner(nil)),
		Classifier: cls,
		Draft:      drafts,
		Research:   res,
		Estimator:  h.estimator,
		Artifacts:  artifact.NewWriter(h.fs, "out"),
		Tokens:     Tokens(config.Default().Tokens),
		USDToJPY:   150,
		Steps:      h.steps,
	})
	return h
}

func (h *harness) send(text string) {
	h.m.Handle(context.Background(), chat.Event{ID: text, Channel: "C1", Text: text, ConversationID: conv})
}

func (h *harness) task(t *testing.T) session.Task {
	t.Helper()
	task, ok := h.store.Get(conv)
	require.True(t, ok, "expected a task")
	return task
}

func (h *harness) last() string {
	return h.chat.Last(conv).Text
}

// sendCollect sends text and returns the texts posted while handling it.
func (h *harness) sendCollect(text string) []string {
	n := len(h.chat.For(conv))
	h.send(text)
	var out []string
	for _, m := range h.chat.For(conv)[n:] {
		out = append(out, m.Text)
	}
	return out
}

func priced(r llmtest.Reply, usd float64) llmtest.Reply {
	r.Resp.CostUSD = usd
	return r
}

const proposalsJSON = `[
 {"企画概要":"朝ごはん3選","企画FMT":"ランキング","視聴開始の仕掛け":"朝なに食べてる？"},
 {"企画概要":"時短弁当","企画FMT":"ルーティン","視聴開始の仕掛け":"5分で完成"},
 {"企画概要":"コンビニ飯","企画FMT":"比較","視聴開始の仕掛け":"どれが一番？"},
 {"企画概要":"夜食レシピ","企画FMT":"HowTo","視聴開始の仕掛け":"深夜でも罪悪感ゼロ"}
]`

const expandJSON = `{"台本セクション1":"今日は時短弁当","台本セクション2":"まとめ","視聴開始の仕掛け":"5分で完成！"}`

func proposalsPending(t *testing.T, h *harness) session.ProposalsPending {
	t.Helper()
	p, ok := h.task(t).Payload.(session.ProposalsPending)
	require.True(t, ok, "expected proposals_pending, got %s", h.task(t).Phase())
	return p
}

func reviewPending(t *testing.T, h *harness) session.ReviewPending {
	t.Helper()
	p, ok := h.task(t).Payload.(session.ReviewPending)
	require.True(t, ok, "expected review_pending, got %s", h.task(t).Phase())
	return p
}

func TestDraftPipelineEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.classify.Push(llmtest.Text(`{"action":"mk_draft","hint":"食べ物系"}`, 1, 1))
	h.trends.Push(priced(llmtest.Text("朝ごはん系が伸びている", 1, 1), 0.01))
	h.writer.Push(
		priced(llmtest.Text(proposalsJSON, 1, 1), 0.02),
		priced(llmtest.Text(expandJSON, 1, 1), 0.03),
		priced(llmtest.Text(`{"台本セクション1":"短くした本文"}`, 1, 1), 0.005),
	)

	h.send("次の台本を作って")
	assert.Equal(t, session.ConfirmDraft{Hint: "食べ物系"}, h.task(t).Payload)
	assert.Contains(t, h.last(), "mk_draft")
	row, ok := h.status.Get(conv)
	require.True(t, ok)
	assert.Equal(t, status.LabelConfirming, row.Label)

	posted := h.sendCollect("はい、朝ごはん中心で")
	require.Len(t, posted, 4)
	assert.Equal(t, []string{MsgReadingSheet, MsgWebResearch, MsgProposing}, posted[:3])
	p := proposalsPending(t, h)
	assert.Len(t, p.Proposals, 4)
	assert.Equal(t, "食べ物系 / 朝ごはん中心で", p.Run.Hint)
	assert.Equal(t, "朝ごはん系が伸びている", p.Run.Research)
	assert.InDelta(t, 0.01, p.Run.Costs.Step(session.StepResearch), 1e-9)
	assert.InDelta(t, 0.02, p.Run.Costs.Step(session.StepProposals), 1e-9)
	assert.Len(t, p.Run.PastData.Rows, 3)
	assert.Contains(t, h.last(), "Proposals are ready")
	assert.Contains(t, h.writer.Requests()[0].User, "食べ物系 / 朝ごはん中心で")

	h.send("9")
	assert.Equal(t, "Please choose a number from 1 to 4.", h.last())
	assert.Equal(t, session.PhaseProposalsPending, h.task(t).Phase())

	posted = h.sendCollect("２")
	require.Len(t, posted, 2)
	assert.Equal(t, fmt.Sprintf(MsgExpanding, 2), posted[0])
	r := reviewPending(t, h)
	assert.Equal(t, 2, r.Selected)
	assert.Equal(t, "時短弁当", r.Topic)
	assert.Equal(t, "今日は時短弁当", r.Draft.String("台本セクション1"))
	assert.Equal(t, "ルーティン", r.Draft.String(draft.ColFormat))
	assert.Contains(t, h.last(), "Proposal 2 selected")

	posted = h.sendCollect("もう少し短くして")
	require.Len(t, posted, 2)
	assert.Equal(t, MsgRevising, posted[0])
	r = reviewPending(t, h)
	assert.Equal(t, "短くした本文", r.Draft.String("台本セクション1"))
	assert.InDelta(t, 0.065, r.Run.Costs.Total(), 1e-9)
	assert.Contains(t, h.last(), "Revised")

	posted = h.sendCollect("確定")
	require.Len(t, posted, 2)
	assert.Equal(t, MsgSaving, posted[0])
	_, ok = h.store.Get(conv)
	assert.False(t, ok)
	_, ok = h.status.Get(conv)
	assert.False(t, ok)

	rows := h.sheet.Rows()
	require.Len(t, rows, 4)
	assert.Equal(t, "短くした本文", rows[3][6])

	final := h.chat.Last(conv)
	assert.NotEmpty(t, final.Path)
	assert.Contains(t, final.Text, "Draft finalized: 時短弁当")
	assert.Contains(t, final.Text, "Cost breakdown")
	assert.Contains(t, final.Text, stepLabels[session.StepRevise])
	assert.Contains(t, final.Text, "https://sheets.example/abc")

	body, err := afero.ReadFile(h.fs, final.Path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "# SNS draft: 時短弁当")
	assert.Contains(t, string(body), "## Selected proposal")

	history, err := h.estimator.History(context.Background(), estimate.KindDraft)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.InDelta(t, 0.065, history[0].CostUSD, 1e-9)
	assert.InDelta(t, 0.065*150, history[0].CostJPY, 1e-9)
	assert.Equal(t, 1, h.steps.get("mk_draft/write_row/ok"))
}

func TestGoBackRestoresProposalsWithoutGenerating(t *testing.T) {
	h := newHarness(t)
	h.classify.Push(llmtest.Text(`{"action":"mk_draft"}`, 1, 1))
	h.trends.Push(llmtest.Text("trends", 1, 1))
	h.writer.Push(
		llmtest.Text(proposalsJSON, 1, 1),
		llmtest.Text(expandJSON, 1, 1),
	)
	h.send("台本作って")
	h.send("はい")
	before := proposalsPending(t, h).Proposals
	h.send("1")
	reviewPending(t, h)
	calls := h.writer.Calls("")

	h.send("他の案を見せて")
	after := proposalsPending(t, h)
	assert.Equal(t, before, after.Proposals)
	assert.Equal(t, calls, h.writer.Calls(""))
	assert.Contains(t, h.last(), "Proposals are ready")
	row, ok := h.status.Get(conv)
	require.True(t, ok)
	assert.Equal(t, status.LabelSelecting, row.Label)
}

func TestGoBackWithoutProposalsClears(t *testing.T) {
	h := newHarness(t)
	h.store.Set(conv, session.Task{Channel: "C1", Payload: session.ReviewPending{Topic: "x"}})

	h.send("他の案")
	_, ok := h.store.Get(conv)
	assert.False(t, ok)
	assert.Equal(t, MsgNoProposals, h.last())
}

func TestCancelDuringInFlightCallDoesNotResurrect(t *testing.T) {
	h := newHarness(t)
	h.store.Set(conv, session.Task{Channel: "C1", Payload: session.ReviewPending{
		Proposals: []extract.Record{{"企画概要": "a"}},
		Topic:     "a",
		Draft:     extract.Record{"台本セクション1": "old"},
	}})
	block := make(chan struct{})
	h.writer.Push(llmtest.Reply{Resp: llm.Response{Text: `{"台本セクション1":"new"}`}, Block: block})

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.send("もっと明るく")
	}()
	require.Eventually(t, func() bool { return h.writer.Calls("revise") == 1 }, time.Second, time.Millisecond)

	assert.True(t, h.m.Cancel(conv))
	close(block)
	<-done

	_, ok := h.store.Get(conv)
	assert.False(t, ok, "late result must not recreate the task")
	_, ok = h.status.Get(conv)
	assert.False(t, ok)
	assert.Contains(t, h.last(), strings.TrimSpace(MsgStaleNote))
}

func TestCancelDuringProposalsReannouncesResult(t *testing.T) {
	h := newHarness(t)
	h.store.Set(conv, session.Task{Channel: "C1", Payload: session.ConfirmDraft{}})
	h.trends.Push(llmtest.Text("trends", 1, 1))
	block := make(chan struct{})
	h.writer.Push(llmtest.Reply{Resp: llm.Response{Text: proposalsJSON}, Block: block})

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.send("はい")
	}()
	require.Eventually(t, func() bool { return h.writer.Calls("proposals") == 1 }, time.Second, time.Millisecond)

	h.m.Cancel(conv)
	close(block)
	<-done

	_, ok := h.store.Get(conv)
	assert.False(t, ok)
	assert.Contains(t, h.last(), "Proposals are ready")
	assert.Contains(t, h.last(), strings.TrimSpace(MsgStaleNote))
}

func TestCancelTokenClearsAnyPhase(t *testing.T) {
	h := newHarness(t)
	h.store.Set(conv, session.Task{Channel: "C1", Payload: session.ConfirmResearch{Topic: "x"}})
	h.status.Upsert(conv, status.LabelConfirming, "research", 0)

	h.send("キャンセル")
	_, ok := h.store.Get(conv)
	assert.False(t, ok)
	_, ok = h.status.Get(conv)
	assert.False(t, ok)
	assert.Equal(t, MsgCancelled, h.last())
}

func TestConfirmDraftRepromptsOnOtherText(t *testing.T) {
	h := newHarness(t)
	h.store.Set(conv, session.Task{Channel: "C1", Payload: session.ConfirmDraft{Hint: "h"}})

	h.send("うーん")
	assert.Equal(t, session.ConfirmDraft{Hint: "h"}, h.task(t).Payload)
	assert.Equal(t, MsgConfirmReprompt, h.last())
	assert.Zero(t, h.writer.Calls(""))
}

func TestConfirmDraftNegativeCancels(t *testing.T) {
	h := newHarness(t)
	h.store.Set(conv, session.Task{Channel: "C1", Payload: session.ConfirmDraft{}})

	h.send("いいえ")
	_, ok := h.store.Get(conv)
	assert.False(t, ok)
	assert.Equal(t, MsgCancelled, h.last())
}

func TestProposalFailureRestoresConfirmation(t *testing.T) {
	h := newHarness(t)
	h.store.Set(conv, session.Task{Channel: "C1", Payload: session.ConfirmDraft{Hint: "h"}})
	h.trends.Fallback = func(llm.Request) (llm.Response, error) { return llm.Response{}, errors.New("search down") }
	h.writer.Push(llmtest.Fail(errors.New("401 unauthorized")))

	h.send("はい")
	assert.Equal(t, session.ConfirmDraft{Hint: "h"}, h.task(t).Payload)
	assert.True(t, h.chat.Contains(conv, "Web research failed"))
	assert.Contains(t, h.last(), "401 unauthorized")
	assert.Equal(t, 1, h.steps.get("mk_draft/proposals/error"))
}

func TestRefinementHintAccumulates(t *testing.T) {
	h := newHarness(t)
	h.store.Set(conv, session.Task{Channel: "C1", Payload: session.ProposalsPending{
		Run:       session.DraftRun{Hint: "食べ物系"},
		Proposals: []extract.Record{{"企画概要": "a"}},
	}})
	h.writer.Push(priced(llmtest.Text(proposalsJSON, 1, 1), 0.02))

	h.send("もっとカジュアルに")
	p := proposalsPending(t, h)
	assert.Equal(t, "食べ物系 / もっとカジュアルに", p.Run.Hint)
	assert.Len(t, p.Proposals, 4)
	assert.InDelta(t, 0.02, p.Run.Costs.Total(), 1e-9)
}

func TestRefinementFailureKeepsProposals(t *testing.T) {
	h := newHarness(t)
	prior := session.ProposalsPending{Proposals: []extract.Record{{"企画概要": "a"}}}
	h.store.Set(conv, session.Task{Channel: "C1", Payload: prior})
	h.writer.Push(llmtest.Fail(errors.New("overloaded")))

	h.send("別の方向で")
	assert.Equal(t, prior, proposalsPending(t, h))
	assert.Contains(t, h.last(), "overloaded")
}

func TestSheetNotConfiguredIsSoft(t *testing.T) {
	h := newHarness(t)
	prompts := templates.MustRenderer()
	drafts, err := draft.New(h.writer, h.trends, sheets.Unconfigured{}, prompts, 4)
	require.NoError(t, err)
	h.m.draft = drafts
	h.store.Set(conv, session.Task{Channel: "C1", Payload: session.ReviewPending{
		Run:     session.DraftRun{Started: time.Now()},
		Topic:   "x",
		Draft:   extract.Record{"台本セクション1": "a"},
		Display: "a",
	}})

	h.send("確定")
	_, ok := h.store.Get(conv)
	assert.False(t, ok)
	final := h.chat.Last(conv)
	assert.NotEmpty(t, final.Path)
	assert.Contains(t, final.Text, "No spreadsheet is configured")
}

func TestArtifactFailureIsReportedAndLogged(t *testing.T) {
	h := newHarness(t)
	h.m.artifacts = artifact.NewWriter(afero.NewReadOnlyFs(h.fs), "out")
	h.store.Set(conv, session.Task{Channel: "C1", Payload: session.ReviewPending{
		Run:     session.DraftRun{Started: time.Now()},
		Topic:   "x",
		Draft:   extract.Record{"台本セクション1": "a"},
		Display: "a",
	}})

	h.send("確定")
	final := h.chat.Last(conv)
	assert.Empty(t, final.Path)
	assert.Contains(t, final.Text, "Could not write the output file")
	lines := h.lines.all()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], conv+": could not write the draft file: "))
	assert.Len(t, h.sheet.Rows(), 4, "the sheet row is still written")
}

func TestResearchPipeline(t *testing.T) {
	h := newHarness(t)
	h.classify.Push(llmtest.Text(`{"action":"research","topic":"Instagram リール 2026 トレンド"}`, 1, 1))
	h.research.Fallback = func(req llm.Request) (llm.Response, error) {
		return llm.Response{Text: req.Step + " findings", CostUSD: 0.01}, nil
	}

	h.send("Instagram リール 2026 のトレンドを調べて")
	assert.Equal(t, session.ConfirmResearch{Topic: "Instagram リール 2026 トレンド"}, h.task(t).Payload)
	assert.Contains(t, h.last(), "Instagram リール 2026 トレンド")

	posted := h.sendCollect("はい")
	require.Len(t, posted, 2)
	assert.Equal(t, fmt.Sprintf(MsgResearchStarts, "Instagram リール 2026 トレンド"), posted[0])
	_, ok := h.store.Get(conv)
	assert.False(t, ok)
	_, ok = h.status.Get(conv)
	assert.False(t, ok)

	final := h.chat.Last(conv)
	require.NotEmpty(t, final.Path)
	assert.True(t, strings.HasPrefix(final.Path, "out/research_"))
	assert.Contains(t, final.Text, "Research complete")
	assert.NotContains(t, final.Text, "partial")

	body, err := afero.ReadFile(h.fs, final.Path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "research_trends findings")
	assert.Contains(t, string(body), "## Run summary")

	history, err := h.estimator.History(context.Background(), estimate.KindResearch)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.InDelta(t, 0.03, history[0].CostUSD, 1e-9)
}

func TestResearchFailureRecordsNothing(t *testing.T) {
	h := newHarness(t)
	h.store.Set(conv, session.Task{Channel: "C1", Payload: session.ConfirmResearch{Topic: "t"}})
	h.research.Fallback = func(llm.Request) (llm.Response, error) {
		return llm.Response{}, errors.New("quota")
	}

	h.send("はい")
	assert.Contains(t, h.last(), "Research failed")
	lines := h.lines.all()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], conv+": research failed: "))
	assert.Contains(t, lines[0], "quota")
	history, err := h.estimator.History(context.Background(), estimate.KindResearch)
	require.NoError(t, err)
	assert.Empty(t, history)
	_, ok := h.status.Get(conv)
	assert.False(t, ok)
}

func TestVagueResearchAsksForTopic(t *testing.T) {
	h := newHarness(t)
	h.classify.Push(llmtest.Text(`{"action":"research","topic":"調べて"}`, 1, 1))

	h.send("調べて")
	assert.Equal(t, session.AwaitingTopic{}, h.task(t).Payload)
	assert.Equal(t, MsgAskTopic, h.last())

	h.send("TikTok 料理動画")
	assert.Equal(t, session.ConfirmResearch{Topic: "TikTok 料理動画"}, h.task(t).Payload)
	assert.Equal(t, 1, h.classify.Calls(""))
}

func TestConfirmResearchOtherTextReplacesTopic(t *testing.T) {
	h := newHarness(t)
	h.store.Set(conv, session.Task{Channel: "C1", Payload: session.ConfirmResearch{Topic: "old"}})

	h.send("YouTube ショート")
	assert.Equal(t, session.ConfirmResearch{Topic: "YouTube ショート"}, h.task(t).Payload)
}

func TestClarificationReclassifiesWithOriginal(t *testing.T) {
	h := newHarness(t)
	h.classify.Push(
		llmtest.Text(`{"action":"ask","question":"何を作りますか？"}`, 1, 1),
		llmtest.Text(`{"action":"mk_draft","hint":"夜食"}`, 1, 1),
	)

	h.send("お願いがある")
	assert.Equal(t, session.AwaitingClarification{OriginalMessage: "お願いがある"}, h.task(t).Payload)
	assert.Equal(t, "何を作りますか？", h.last())

	h.send("台本")
	assert.Equal(t, session.ConfirmDraft{Hint: "夜食"}, h.task(t).Payload)
	reqs := h.classify.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, classify.Clarified("お願いがある", "台本"), reqs[1].User)
}

func TestChatReplyLeavesNoTask(t *testing.T) {
	h := newHarness(t)
	h.classify.Push(llmtest.Text(`{"action":"chat","reply":"こんにちは！"}`, 1, 1))

	h.send("こんにちは")
	_, ok := h.store.Get(conv)
	assert.False(t, ok)
	assert.Equal(t, "こんにちは！", h.last())
}

func TestHelpSkipsClassifier(t *testing.T) {
	h := newHarness(t)

	h.send("ヘルプ")
	assert.Zero(t, h.classify.Calls(""))
	assert.Contains(t, h.last(), "mk_draft")
	assert.Contains(t, h.last(), "research")
	_, ok := h.store.Get(conv)
	assert.False(t, ok)
}

func TestClassifierErrorAsks(t *testing.T) {
	h := newHarness(t)
	h.classify.Push(llmtest.Fail(errors.New("timeout")))

	h.send("何か")
	assert.Equal(t, session.PhaseAwaitingClarification, h.task(t).Phase())
	assert.Equal(t, classify.GenericQuestion, h.last())
	assert.Equal(t, []string{conv + ": intent classification failed: timeout"}, h.lines.all())
}

func TestFailClearsConversation(t *testing.T) {
	h := newHarness(t)
	h.store.Set(conv, session.Task{Channel: "C1", Payload: session.ConfirmDraft{}})
	h.status.Upsert(conv, status.LabelConfirming, "x", 0)

	h.m.Fail(context.Background(), chat.Event{Channel: "C1", ConversationID: conv})
	_, ok := h.store.Get(conv)
	assert.False(t, ok)
	_, ok = h.status.Get(conv)
	assert.False(t, ok)
	assert.Equal(t, MsgFailed, h.last())
}
