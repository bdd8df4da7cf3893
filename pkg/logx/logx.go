// Package logx provides component-scoped leveled logging with domain-filtered debug output.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// TimestampFormat is used for every emitted line and buffered entry.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes lines of the form "[ts] [component] LEVEL: message".
type Logger struct {
	component string
}

// Entry is a buffered log line, served by the status endpoint.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Domain    string `json:"domain,omitempty"`
}

type debugSettings struct {
	enabled bool
	domains map[string]bool // nil means every domain
}

var (
	debugMu  sync.RWMutex
	debugCfg debugSettings

	logWriterLock sync.Mutex
	logWriter     io.Writer // nil means stderr

	recent = newRing(1000)
)

func init() { //nolint:gochecknoinits // env driven debug switches
	loadDebugFromEnv()
}

// loadDebugFromEnv reads DEBUG=1 and DEBUG_DOMAINS=dispatch,pipeline.
func loadDebugFromEnv() {
	debugMu.Lock()
	defer debugMu.Unlock()

	debugCfg = debugSettings{}
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugCfg.enabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugCfg.domains = parseDomains(strings.Split(domains, ","))
	}
}

func parseDomains(domains []string) map[string]bool {
	if len(domains) == 0 {
		return nil
	}
	out := make(map[string]bool, len(domains))
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			out[d] = true
		}
	}
	return out
}

// NewLogger returns a logger tagged with the given component name.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// Component returns the tag this logger writes under.
func (l *Logger) Component() string {
	return l.component
}

// With returns a logger for a sub-component, e.g. "pipeline/C123".
func (l *Logger) With(sub string) *Logger {
	return &Logger{component: l.component + "/" + sub}
}

// SetDebug toggles debug output; an empty domain list enables every domain.
func SetDebug(enabled bool, domains ...string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugCfg.enabled = enabled
	debugCfg.domains = parseDomains(domains)
}

// IsDebugEnabledForDomain reports whether Debug(ctx, domain, ...) would emit.
func IsDebugEnabledForDomain(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debugCfg.enabled {
		return false
	}
	return debugCfg.domains == nil || debugCfg.domains[domain]
}

// SetOutput redirects all loggers. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	logWriterLock.Lock()
	logWriter = w
	logWriterLock.Unlock()
}

func write(line string) {
	logWriterLock.Lock()
	defer logWriterLock.Unlock()
	w := logWriter
	if w == nil {
		w = os.Stderr
	}
	_, _ = io.WriteString(w, line+"\n")
}

func emit(component, domain string, level Level, message string) {
	ts := time.Now().UTC().Format(TimestampFormat)
	if domain != "" {
		write(fmt.Sprintf("[%s] [%s] %s: [%s] %s", ts, component, level, domain, message))
	} else {
		write(fmt.Sprintf("[%s] [%s] %s: %s", ts, component, level, message))
	}
	recent.add(Entry{Timestamp: ts, Component: component, Level: string(level), Message: message, Domain: domain})
}

func (l *Logger) Debug(format string, args ...any) {
	domain, _, _ := strings.Cut(l.component, "/")
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	emit(l.component, "", LevelDebug, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	emit(l.component, "", LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	emit(l.component, "", LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	emit(l.component, "", LevelError, fmt.Sprintf(format, args...))
}

type ctxKey struct{}

// WithConversation tags ctx so Debug lines carry the conversation id.
func WithConversation(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, conversationID)
}

// ConversationFrom returns the id stored by WithConversation, or "".
func ConversationFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Debug logs with domain filtering.
//
//	DEBUG=1                              # every domain
//	DEBUG=1 DEBUG_DOMAINS=dispatch       # only the dispatcher
//	DEBUG=1 DEBUG_DOMAINS=pipeline,llm   # several
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	component := ConversationFrom(ctx)
	if component == "" {
		component = "system"
	}
	emit(component, domain, LevelDebug, fmt.Sprintf(format, args...))
}

// DebugState logs a state transition for a conversation.
func DebugState(ctx context.Context, domain, from, to string) {
	Debug(ctx, domain, "State %s -> %s", from, to)
}

var defaultLogger = NewLogger("system")

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error:
//
//	return logx.Errorf("open history: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err and returns the wrapped error. Nil stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
