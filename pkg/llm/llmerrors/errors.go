// Package llmerrors classifies provider failures so middleware can decide
// whether to retry.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType is the classification.
type ErrorType int8

const (
	// Retryable.
	ErrorTypeRateLimit ErrorType = iota
	ErrorTypeTransient
	ErrorTypeEmptyResponse
	ErrorTypeUnknown

	// Not retryable.
	ErrorTypeAuth
	ErrorTypeBadPrompt
	ErrorTypeServiceUnavailable
)

func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeServiceUnavailable:
		return "service_unavailable"
	default:
		return "invalid"
	}
}

// Error is a classified provider error.
type Error struct {
	Err        error
	Message    string
	Type       ErrorType
	StatusCode int
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("model error (%s): %s: %v", e.Type, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("model error (%s): %s", e.Type, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("model error (%s): %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("model error (%s): status %d", e.Type, e.StatusCode)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another attempt could succeed.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeServiceUnavailable:
		return false
	default:
		return true
	}
}

func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

func NewErrorWithStatus(t ErrorType, status int, message string) *Error {
	return &Error{Type: t, StatusCode: status, Message: message}
}

func NewErrorWithCause(t ErrorType, cause error, message string) *Error {
	return &Error{Type: t, Err: cause, Message: message}
}

// NewServiceUnavailableError is emitted once retries are exhausted.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Err:     cause,
		Message: fmt.Sprintf("service unavailable after %d attempts", attempts),
	}
}

// Is reports whether err is a classified error of type t.
func Is(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// TypeOf returns the classification, ErrorTypeUnknown when unclassified.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// FromStatus classifies an HTTP status; ok is false for statuses it does not map.
func FromStatus(status int, cause error) (*Error, bool) {
	switch {
	case status == 401 || status == 403:
		return &Error{Type: ErrorTypeAuth, StatusCode: status, Err: cause, Message: "authentication failed, check the API key"}, true
	case status == 429:
		return &Error{Type: ErrorTypeRateLimit, StatusCode: status, Err: cause, Message: "rate limit exceeded"}, true
	case status == 400 || status == 404 || status == 413 || status == 422:
		return &Error{Type: ErrorTypeBadPrompt, StatusCode: status, Err: cause, Message: "request rejected"}, true
	case status == 529 || status >= 500:
		return &Error{Type: ErrorTypeTransient, StatusCode: status, Err: cause, Message: "server error"}, true
	}
	return nil, false
}

var statusPattern = regexp.MustCompile(`(?i)(?:status(?: code)?:?|http) ?(\d{3})\b`)

// Classify maps an arbitrary provider error onto an ErrorType, using the
// HTTP status embedded in the message when present and keywords otherwise.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return already
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request canceled")
	}

	msg := err.Error()
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			if e, ok := FromStatus(code, err); ok {
				return e
			}
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "timeout", "connection", "network", "temporary", "eof", "reset", "overloaded"):
		return NewErrorWithCause(ErrorTypeTransient, err, "network or connection error")
	case containsAny(lower, "rate limit", "rate_limit", "ratelimit", "quota", "too many requests"):
		return NewErrorWithCause(ErrorTypeRateLimit, err, "rate limiting detected")
	case containsAny(lower, "unauthorized", "api key", "authentication", "permission"):
		return NewErrorWithCause(ErrorTypeAuth, err, "authentication error")
	case containsAny(lower, "invalid", "malformed", "too large", "context length"):
		return NewErrorWithCause(ErrorTypeBadPrompt, err, "prompt or request error")
	}
	return NewErrorWithCause(ErrorTypeUnknown, err, "unclassified error")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// IsServiceUnavailable reports whether retries were exhausted.
func IsServiceUnavailable(err error) bool {
	return Is(err, ErrorTypeServiceUnavailable)
}
