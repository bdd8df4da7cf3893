// Package chat is the messaging boundary: inbound events from a transport
// and best-effort outbound posts and uploads.
package chat

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
)

const (
	// DefaultMaxMessageChars bounds one outbound post, in characters.
	DefaultMaxMessageChars = 4096

	// TruncationSuffix is appended to posts that exceed the limit.
	TruncationSuffix = " … [truncated]"
)

// Event is one inbound user message.
type Event struct {
	// ID is unique per delivered message; redeliveries reuse it.
	ID      string
	Channel string
	Text    string
	// ConversationID groups replies to one thread.
	ConversationID string
	User           string
}

// Sender delivers outbound messages.
type Sender interface {
	Post(ctx context.Context, channel, text, conversationID string) error
	Upload(ctx context.Context, channel, path, caption, conversationID string) error
}

// Handler consumes inbound events. It must not block on external calls.
type Handler func(ctx context.Context, ev Event)

// Transport is a Sender that also produces inbound events until ctx ends.
type Transport interface {
	Sender
	Run(ctx context.Context, handle Handler) error
}

// Service wraps a Sender with size limits, secret redaction and error logging.
// Its methods never fail: delivery problems are logged.
type Service struct {
	sender   Sender
	scanner  SecretScanner
	maxChars int
	logger   *logx.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithScanner replaces the default PatternScanner; nil disables redaction.
func WithScanner(s SecretScanner) Option {
	return func(svc *Service) { svc.scanner = s }
}

// WithMaxChars overrides DefaultMaxMessageChars.
func WithMaxChars(n int) Option {
	return func(svc *Service) {
		if n > utf8.RuneCountInString(TruncationSuffix) {
			svc.maxChars = n
		}
	}
}

func NewService(sender Sender, opts ...Option) *Service {
	s := &Service{
		sender:   sender,
		scanner:  NewPatternScanner(200 * time.Millisecond),
		maxChars: DefaultMaxMessageChars,
		logger:   logx.NewLogger("chat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) prepare(ctx context.Context, text string) string {
	if n := utf8.RuneCountInString(text); n > s.maxChars {
		runes := []rune(text)
		text = string(runes[:s.maxChars-utf8.RuneCountInString(TruncationSuffix)]) + TruncationSuffix
		s.logger.Debug("truncated outbound message (%d chars, max %d)", n, s.maxChars)
	}
	if s.scanner != nil {
		redacted, err := RedactSecrets(ctx, s.scanner, text)
		if err != nil {
			s.logger.Error("%v (sending original text)", err)
		} else {
			text = redacted
		}
	}
	return text
}

// Post sends text to the conversation.
func (s *Service) Post(ctx context.Context, channel, text, conversationID string) {
	if err := s.sender.Post(ctx, channel, s.prepare(ctx, text), conversationID); err != nil {
		s.logger.Warn("post to %s failed: %v", channel, err)
	}
}

// Upload attaches the file at path with caption. When the upload fails the
// caption is posted with the error instead.
func (s *Service) Upload(ctx context.Context, channel, path, caption, conversationID string) {
	caption = s.prepare(ctx, caption)
	err := s.sender.Upload(ctx, channel, path, caption, conversationID)
	if err == nil {
		return
	}
	s.logger.Warn("upload of %s failed: %v", filepath.Base(path), err)
	s.Post(ctx, channel, fmt.Sprintf("%s\n⚠️ File attachment failed: %v", caption, err), conversationID)
}
