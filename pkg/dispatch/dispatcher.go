// Package dispatch routes inbound chat events to the pipeline. Each
// conversation gets a FIFO mailbox drained by its own goroutine, so messages
// of one conversation run in order while conversations run in parallel. The
// inbound loop only enqueues and never waits for a handler.
package dispatch

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/chat"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/pipeline"
)

// DefaultDepth is the mailbox depth when none is configured.
const DefaultDepth = 4

// Replies sent by the dispatcher itself.
const (
	MsgQueued = "⏳ I'm still working on your previous message. This one is queued and will be handled next."
	MsgBusy   = "⏳ I'm still working on earlier messages here. Please wait for them to finish, or send *キャンセル* to stop."
)

// Dispatch outcomes, as counted by Recorder.
const (
	OutcomeAccepted  = "accepted"
	OutcomeQueued    = "queued"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
	OutcomeCancelled = "cancelled"
	OutcomePanic     = "panic"
)

// Machine is the per-message handler; *pipeline.Machine implements it.
type Machine interface {
	Handle(ctx context.Context, ev chat.Event)
	Cancel(conversationID string) bool
	Fail(ctx context.Context, ev chat.Event)
}

// Recorder counts dispatch outcomes; *metrics.Recorder implements it.
type Recorder interface {
	IncDispatch(outcome string)
}

// Config wires a Dispatcher. Dedup and Metrics may be nil.
type Config struct {
	Machine Machine
	Chat    pipeline.Poster
	Dedup   Deduper
	Tokens  pipeline.Tokens
	Depth   int
	Metrics Recorder
}

type mailbox struct {
	queue   []chat.Event
	running bool
}

// Dispatcher owns the mailboxes.
type Dispatcher struct {
	machine Machine
	chat    pipeline.Poster
	dedup   Deduper
	tokens  pipeline.Tokens
	depth   int
	metrics Recorder
	logger  *logx.Logger

	base context.Context
	stop context.CancelFunc
	wg   conc.WaitGroup

	mu     sync.Mutex
	boxes  map[string]*mailbox
	closed bool
}

// New returns a running Dispatcher.
func New(cfg Config) *Dispatcher {
	depth := cfg.Depth
	if depth <= 0 {
		depth = DefaultDepth
	}
	base, stop := context.WithCancel(context.Background())
	return &Dispatcher{
		machine: cfg.Machine,
		chat:    cfg.Chat,
		dedup:   cfg.Dedup,
		tokens:  cfg.Tokens,
		depth:   depth,
		metrics: cfg.Metrics,
		logger:  logx.NewLogger("dispatch"),
		base:    base,
		stop:    stop,
		boxes:   make(map[string]*mailbox),
	}
}

// Handle accepts one inbound event. It has the chat.Handler signature.
func (d *Dispatcher) Handle(ctx context.Context, ev chat.Event) {
	if d.isClosed() {
		d.logger.Warn("event %s arrived after shutdown, dropped", ev.ID)
		d.count(OutcomeRejected)
		return
	}
	if d.dedup != nil && d.dedup.Duplicate(ctx, ev.ID, ev.Channel) {
		d.logger.Debug("duplicate event %s ignored", ev.ID)
		d.count(OutcomeDuplicate)
		return
	}
	if d.tokens.IsCancel(ev.Text) && d.cancel(ev) {
		return
	}

	d.mu.Lock()
	box, ok := d.boxes[ev.ConversationID]
	if !ok {
		box = &mailbox{}
		d.boxes[ev.ConversationID] = box
	}
	if len(box.queue) >= d.depth {
		d.mu.Unlock()
		d.logger.Warn("mailbox of %s is full, rejecting event %s", ev.ConversationID, ev.ID)
		d.count(OutcomeRejected)
		d.reply(ev, MsgBusy)
		return
	}
	box.queue = append(box.queue, ev)
	busy := box.running
	if !busy {
		box.running = true
		conv := ev.ConversationID
		d.wg.Go(func() { d.drain(conv, box) })
	}
	d.mu.Unlock()

	if busy {
		d.count(OutcomeQueued)
		d.reply(ev, MsgQueued)
		return
	}
	d.count(OutcomeAccepted)
}

// cancel clears the conversation when it has a Task or a running handler.
// It reports whether it did; otherwise the cancel word is handled as text.
// A running handler keeps its context: its write-back fails the generation
// check and the pipeline re-announces the result instead.
func (d *Dispatcher) cancel(ev chat.Event) bool {
	d.mu.Lock()
	box := d.boxes[ev.ConversationID]
	running := box != nil && box.running
	if running {
		box.queue = nil
	}
	d.mu.Unlock()

	existed := d.machine.Cancel(ev.ConversationID)
	if !running && !existed {
		return false
	}
	d.logger.Info("cancelled %s", ev.ConversationID)
	d.count(OutcomeCancelled)
	d.reply(ev, pipeline.MsgCancelled)
	return true
}

func (d *Dispatcher) drain(conv string, box *mailbox) {
	for {
		d.mu.Lock()
		if len(box.queue) == 0 {
			box.running = false
			if d.boxes[conv] == box {
				delete(d.boxes, conv)
			}
			d.mu.Unlock()
			return
		}
		ev := box.queue[0]
		box.queue = box.queue[1:]
		d.mu.Unlock()

		d.run(d.base, ev)
	}
}

// run handles one message. A panic resets the conversation instead of
// taking the process down.
func (d *Dispatcher) run(ctx context.Context, ev chat.Event) {
	var pc panics.Catcher
	pc.Try(func() { d.machine.Handle(ctx, ev) })
	if r := pc.Recovered(); r != nil {
		d.logger.Error("handler panicked for %s: %v\n%s", ev.ConversationID, r.Value, r.Stack)
		d.count(OutcomePanic)
		d.machine.Fail(d.base, ev)
	}
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dispatcher) reply(ev chat.Event, text string) {
	d.wg.Go(func() { d.chat.Post(d.base, ev.Channel, text, ev.ConversationID) })
}

func (d *Dispatcher) count(outcome string) {
	if d.metrics != nil {
		d.metrics.IncDispatch(outcome)
	}
}

// Pending returns the number of queued (not yet running) messages per
// conversation with a live mailbox.
func (d *Dispatcher) Pending() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.boxes))
	for id, box := range d.boxes {
		out[id] = len(box.queue)
	}
	return out
}

// Shutdown stops intake and waits for every mailbox to drain. When ctx ends
// first, running handlers are cancelled and awaited before returning
// ctx.Err().
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.logger.Info("stopping dispatcher")

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.stop()
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("dispatcher stop timed out, cancelling running handlers")
		d.stop()
		<-done
		return ctx.Err()
	}
}
