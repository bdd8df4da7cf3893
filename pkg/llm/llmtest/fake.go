// Package llmtest provides a scripted Generator for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
)

// ErrExhausted is returned when no scripted reply is left.
var ErrExhausted = errors.New("llmtest: no scripted reply left")

// Reply is one scripted outcome.
type Reply struct {
	Resp llm.Response
	Err  error
	// Block, when set, is waited on (or ctx) before replying.
	Block <-chan struct{}
}

// Fake replays Replies in order and records every request.
type Fake struct {
	mu       sync.Mutex
	model    string
	replies  []Reply
	requests []llm.Request
	// Fallback answers requests once the script is exhausted.
	Fallback func(llm.Request) (llm.Response, error)
}

// New returns a Fake named model.
func New(model string, replies ...Reply) *Fake {
	return &Fake{model: model, replies: replies}
}

// Text is shorthand for a successful reply.
func Text(text string, in, out int) Reply {
	return Reply{Resp: llm.Response{Text: text, InputTokens: in, OutputTokens: out, StopReason: llm.StopEnd}}
}

// Fail is shorthand for an error reply.
func Fail(err error) Reply {
	return Reply{Err: err}
}

// Push appends replies to the script.
func (f *Fake) Push(replies ...Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
}

func (f *Fake) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		fb := f.Fallback
		f.mu.Unlock()
		if fb != nil {
			return fb(req)
		}
		return llm.Response{}, ErrExhausted
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	f.mu.Unlock()

	if r.Block != nil {
		select {
		case <-r.Block:
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	if r.Err != nil {
		return llm.Response{}, r.Err
	}
	resp := r.Resp
	if resp.Model == "" {
		resp.Model = f.model
	}
	return resp, nil
}

func (f *Fake) Model() string {
	return f.model
}

// Requests returns a copy of what was asked so far.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// Calls counts requests, optionally only those for step.
func (f *Fake) Calls(step string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if step == "" {
		return len(f.requests)
	}
	n := 0
	for _, r := range f.requests {
		if r.Step == step {
			n++
		}
	}
	return n
}
