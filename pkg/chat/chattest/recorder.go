// Package chattest provides an in-memory chat transport for tests.
package chattest

import (
	"context"
	"strings"
	"sync"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/chat"
)

// Message is one recorded outbound post or upload.
type Message struct {
	Channel        string
	ConversationID string
	Text           string
	// Path is set for uploads.
	Path string
}

// Recorder implements chat.Transport. Run delivers events passed to Send.
type Recorder struct {
	mu        sync.Mutex
	messages  []Message
	UploadErr error
	PostErr   error

	events chan chat.Event
	// notify is signalled after every recorded message.
	notify chan struct{}
}

func New() *Recorder {
	return &Recorder{
		events: make(chan chat.Event, 64),
		notify: make(chan struct{}, 1),
	}
}

func (r *Recorder) record(m Message) {
	r.mu.Lock()
	r.messages = append(r.messages, m)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Recorder) Post(_ context.Context, channel, text, conversationID string) error {
	if r.PostErr != nil {
		return r.PostErr
	}
	r.record(Message{Channel: channel, ConversationID: conversationID, Text: text})
	return nil
}

func (r *Recorder) Upload(_ context.Context, channel, path, caption, conversationID string) error {
	if r.UploadErr != nil {
		return r.UploadErr
	}
	r.record(Message{Channel: channel, ConversationID: conversationID, Text: caption, Path: path})
	return nil
}

// Send queues an inbound event for Run.
func (r *Recorder) Send(ev chat.Event) {
	r.events <- ev
}

func (r *Recorder) Run(ctx context.Context, handle chat.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.events:
			handle(ctx, ev)
		}
	}
}

// Messages returns everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// For returns the messages of one conversation.
func (r *Recorder) For(conversationID string) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the latest message of a conversation, or the zero Message.
func (r *Recorder) Last(conversationID string) Message {
	msgs := r.For(conversationID)
	if len(msgs) == 0 {
		return Message{}
	}
	return msgs[len(msgs)-1]
}

// Contains reports whether any message of the conversation contains sub.
func (r *Recorder) Contains(conversationID, sub string) bool {
	for _, m := range r.For(conversationID) {
		if strings.Contains(m.Text, sub) {
			return true
		}
	}
	return false
}

// Reset drops recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.messages = nil
	r.mu.Unlock()
}
