package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/chat"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/chat/chattest"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/config"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/pipeline"
)

// fakeMachine records handled texts per conversation. A text listed in
// block waits for its channel (or ctx) before returning.
type fakeMachine struct {
	mu        sync.Mutex
	handled   map[string][]string
	active    map[string]int
	maxActive map[string]int
	tasks     map[string]bool
	cancelled []string
	failed    []string
	aborted   []string
	block     map[string]chan struct{}
	started   chan string
	panicOn   string
}

func newFakeMachine() *fakeMachine {
	return &fakeMachine{
		handled:   make(map[string][]string),
		active:    make(map[string]int),
		maxActive: make(map[string]int),
		tasks:     make(map[string]bool),
		block:     make(map[string]chan struct{}),
		started:   make(chan string, 64),
	}
}

func (f *fakeMachine) blockOn(text string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.block[text] = ch
	return ch
}

func (f *fakeMachine) Handle(ctx context.Context, ev chat.Event) {
	f.mu.Lock()
	f.active[ev.ConversationID]++
	if f.active[ev.ConversationID] > f.maxActive[ev.ConversationID] {
		f.maxActive[ev.ConversationID] = f.active[ev.ConversationID]
	}
	ch := f.block[ev.Text]
	f.tasks[ev.ConversationID] = true
	f.mu.Unlock()
	f.started <- ev.Text

	defer func() {
		f.mu.Lock()
		f.active[ev.ConversationID]--
		f.mu.Unlock()
	}()
	if ev.Text == f.panicOn {
		panic("boom")
	}
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			f.mu.Lock()
			f.aborted = append(f.aborted, ev.Text)
			f.mu.Unlock()
			return
		}
	}
	f.mu.Lock()
	f.handled[ev.ConversationID] = append(f.handled[ev.ConversationID], ev.Text)
	f.mu.Unlock()
}

func (f *fakeMachine) Cancel(conv string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, conv)
	existed := f.tasks[conv]
	delete(f.tasks, conv)
	return existed
}

func (f *fakeMachine) Fail(_ context.Context, ev chat.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, ev.ConversationID)
	delete(f.tasks, ev.ConversationID)
}

func (f *fakeMachine) texts(conv string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.handled[conv]...)
}

func (f *fakeMachine) snapshot() (aborted, failed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.aborted...), append([]string(nil), f.failed...)
}

type outcomes struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *outcomes) IncDispatch(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[outcome]++
}

func (o *outcomes) get(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[outcome]
}

func newDispatcher(t *testing.T, m *fakeMachine, depth int) (*Dispatcher, *chattest.Recorder, *outcomes) {
	t.Helper()
	rec := chattest.New()
	out := &outcomes{}
	d := New(Config{
		Machine: m,
		Chat:    chat.NewService(rec, chat.WithScanner(nil)),
		Dedup:   NewMemoryDeduper(time.Minute),
		Tokens:  pipeline.Tokens(config.Default().Tokens),
		Depth:   depth,
		Metrics: out,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})
	return d, rec, out
}

var seq atomic.Int64

func event(conv, text string) chat.Event {
	return chat.Event{ID: fmt.Sprintf("Ev%d", seq.Add(1)), Channel: "D1", Text: text, ConversationID: conv}
}

func waitStarted(t *testing.T, m *fakeMachine, text string) {
	t.Helper()
	select {
	case got := <-m.started:
		require.Equal(t, text, got)
	case <-time.After(time.Second):
		t.Fatalf("handler for %q did not start", text)
	}
}

func TestConversationsRunIndependently(t *testing.T) {
	m := newFakeMachine()
	d, _, _ := newDispatcher(t, m, 4)
	release := m.blockOn("slow")

	d.Handle(context.Background(), event("A", "slow"))
	waitStarted(t, m, "slow")

	d.Handle(context.Background(), event("B", "fast"))
	waitStarted(t, m, "fast")
	require.Eventually(t, func() bool { return len(m.texts("B")) == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, m.texts("A"))

	close(release)
	require.Eventually(t, func() bool { return len(m.texts("A")) == 1 }, time.Second, time.Millisecond)
}

func TestMessagesOfOneConversationAreSerialized(t *testing.T) {
	m := newFakeMachine()
	d, rec, out := newDispatcher(t, m, 4)
	release := m.blockOn("1")

	d.Handle(context.Background(), event("A", "1"))
	waitStarted(t, m, "1")
	d.Handle(context.Background(), event("A", "2"))
	d.Handle(context.Background(), event("A", "3"))
	assert.Equal(t, map[string]int{"A": 2}, d.Pending())

	close(release)
	require.Eventually(t, func() bool { return len(m.texts("A")) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3"}, m.texts("A"))
	m.mu.Lock()
	assert.Equal(t, 1, m.maxActive["A"])
	m.mu.Unlock()

	assert.Equal(t, 1, out.get(OutcomeAccepted))
	assert.Equal(t, 2, out.get(OutcomeQueued))
	require.Eventually(t, func() bool { return rec.Contains("A", MsgQueued) }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(d.Pending()) == 0 }, time.Second, time.Millisecond)
}

func TestDuplicateEventIDsAreIgnored(t *testing.T) {
	m := newFakeMachine()
	d, _, out := newDispatcher(t, m, 4)
	ev := chat.Event{ID: "Ev1", Channel: "D1", Text: "hello", ConversationID: "A"}

	d.Handle(context.Background(), ev)
	d.Handle(context.Background(), ev)
	require.Eventually(t, func() bool { return len(m.texts("A")) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"hello"}, m.texts("A"))
	assert.Equal(t, 1, out.get(OutcomeDuplicate))
}

func TestCancelBypassesQueue(t *testing.T) {
	m := newFakeMachine()
	d, rec, out := newDispatcher(t, m, 4)
	release := m.blockOn("long")

	d.Handle(context.Background(), event("A", "long"))
	waitStarted(t, m, "long")
	d.Handle(context.Background(), event("A", "queued"))

	d.Handle(context.Background(), event("A", "キャンセル"))
	require.Eventually(t, func() bool { return rec.Contains("A", pipeline.MsgCancelled) }, time.Second, time.Millisecond)
	assert.Equal(t, map[string]int{"A": 0}, d.Pending(), "queued message must be dropped")
	assert.Equal(t, 1, out.get(OutcomeCancelled))

	close(release)
	require.Eventually(t, func() bool { return len(d.Pending()) == 0 }, time.Second, time.Millisecond)

	aborted, _ := m.snapshot()
	assert.Empty(t, aborted, "cancel must not abort the running handler")
	assert.Equal(t, []string{"long"}, m.texts("A"))
}

func TestCancelWordWithoutTaskIsOrdinaryText(t *testing.T) {
	m := newFakeMachine()
	d, _, out := newDispatcher(t, m, 4)

	d.Handle(context.Background(), event("A", "キャンセル"))
	require.Eventually(t, func() bool { return len(m.texts("A")) == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, out.get(OutcomeCancelled))
}

func TestFullMailboxRejects(t *testing.T) {
	m := newFakeMachine()
	d, rec, out := newDispatcher(t, m, 1)
	release := m.blockOn("first")

	d.Handle(context.Background(), event("A", "first"))
	waitStarted(t, m, "first")
	d.Handle(context.Background(), event("A", "second"))
	d.Handle(context.Background(), event("A", "third"))

	assert.Equal(t, 1, out.get(OutcomeRejected))
	require.Eventually(t, func() bool { return rec.Contains("A", MsgBusy) }, time.Second, time.Millisecond)
	close(release)
	require.Eventually(t, func() bool { return len(m.texts("A")) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, m.texts("A"))
}

func TestPanicFailsConversationAndKeepsWorking(t *testing.T) {
	m := newFakeMachine()
	m.panicOn = "explode"
	d, _, out := newDispatcher(t, m, 4)

	d.Handle(context.Background(), event("A", "explode"))
	d.Handle(context.Background(), event("A", "after"))
	require.Eventually(t, func() bool { return len(m.texts("A")) == 1 }, time.Second, time.Millisecond)

	_, failed := m.snapshot()
	assert.Equal(t, []string{"A"}, failed)
	assert.Equal(t, 1, out.get(OutcomePanic))
	assert.Equal(t, []string{"after"}, m.texts("A"))
}

func TestShutdownWaitsAndStopsIntake(t *testing.T) {
	m := newFakeMachine()
	d, _, out := newDispatcher(t, m, 4)
	release := m.blockOn("work")

	d.Handle(context.Background(), event("A", "work"))
	waitStarted(t, m, "work")

	done := make(chan error, 1)
	go func() { done <- d.Shutdown(context.Background()) }()
	require.Eventually(t, d.isClosed, time.Second, time.Millisecond)

	d.Handle(context.Background(), event("B", "late"))
	assert.Equal(t, 1, out.get(OutcomeRejected))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"work"}, m.texts("A"))
	assert.Empty(t, m.texts("B"))
}

func TestShutdownDeadlineCancelsHandlers(t *testing.T) {
	m := newFakeMachine()
	d, _, _ := newDispatcher(t, m, 4)
	m.blockOn("stuck")

	d.Handle(context.Background(), event("A", "stuck"))
	waitStarted(t, m, "stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
	aborted, _ := m.snapshot()
	assert.Equal(t, []string{"stuck"}, aborted)
}

func TestMemoryDeduperExpires(t *testing.T) {
	d := NewMemoryDeduper(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	assert.False(t, d.Duplicate(context.Background(), "x", "c"))
	assert.True(t, d.Duplicate(context.Background(), "x", "c"))
	assert.False(t, d.Duplicate(context.Background(), "", "c"))
	assert.False(t, d.Duplicate(context.Background(), "", "c"))

	now = now.Add(2 * time.Minute)
	assert.False(t, d.Duplicate(context.Background(), "x", "c"))
}

type markerFunc func(ctx context.Context, id, channel string) (bool, error)

func (f markerFunc) MarkSeen(ctx context.Context, id, channel string) (bool, error) {
	return f(ctx, id, channel)
}

func TestStoreDeduper(t *testing.T) {
	seen := map[string]bool{}
	d := NewStoreDeduper(markerFunc(func(_ context.Context, id, _ string) (bool, error) {
		if id == "broken" {
			return false, assert.AnError
		}
		fresh := !seen[id]
		seen[id] = true
		return fresh, nil
	}))

	assert.False(t, d.Duplicate(context.Background(), "a", "c"))
	assert.True(t, d.Duplicate(context.Background(), "a", "c"))
	assert.False(t, d.Duplicate(context.Background(), "broken", "c"))
}
