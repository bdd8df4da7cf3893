package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RedactionNote is appended once to text that had secrets removed.
const RedactionNote = " (note: credentials redacted)"

// SecretScanner removes credentials from outbound text.
type SecretScanner interface {
	Scan(ctx context.Context, text string) (redactedText string, hadRedactions bool, err error)
}

// PatternScanner redacts well-known credential shapes. Model output can echo
// prompt content, and the process holds several API tokens.
type PatternScanner struct {
	patterns []*regexp.Regexp
	timeout  time.Duration
}

func NewPatternScanner(timeout time.Duration) *PatternScanner {
	return &PatternScanner{
		patterns: compileDefaultPatterns(),
		timeout:  timeout,
	}
}

func compileDefaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// Anthropic before OpenAI: both start with "sk-".
		`sk-ant-[A-Za-z0-9_-]{20,}`,
		`sk-proj-[A-Za-z0-9_-]{20,}`,
		`sk-[A-Za-z0-9]{32,}`,

		// Slack bot, user and app-level tokens.
		`xox[abpr]-[A-Za-z0-9-]{10,}`,
		`xapp-[A-Za-z0-9-]{10,}`,

		// Google API keys.
		`AIza[0-9A-Za-z_-]{35}`,

		`AKIA[0-9A-Z]{16}`,
		`api[_-]?key[_-]?[:=]\s*['"]?[A-Za-z0-9_-]{20,}['"]?`,
		`secret[_-]?[:=]\s*['"]?[A-Za-z0-9_-]{20,}['"]?`,
		`Bearer\s+[A-Za-z0-9._-]{20,}`,
		`-----BEGIN\s+(?:RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

func (s *PatternScanner) Scan(ctx context.Context, text string) (string, bool, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	redacted := text
	hadRedactions := false
	for _, pattern := range s.patterns {
		if err := ctx.Err(); err != nil {
			return "", false, fmt.Errorf("scan interrupted: %w", err)
		}
		if pattern.MatchString(redacted) {
			hadRedactions = true
			redacted = pattern.ReplaceAllString(redacted, "[redacted]")
		}
	}
	return redacted, hadRedactions, nil
}

// RedactSecrets applies scanner and appends RedactionNote when anything was
// removed. On scanner failure the original text is returned with the error.
func RedactSecrets(ctx context.Context, scanner SecretScanner, text string) (string, error) {
	redacted, hadRedactions, err := scanner.Scan(ctx, text)
	if err != nil {
		return text, fmt.Errorf("secret scanner error: %w", err)
	}
	if hadRedactions && !strings.HasSuffix(redacted, RedactionNote) {
		redacted += RedactionNote
	}
	return redacted, nil
}
