package llm

import (
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter approximates prompt sizes with the GPT-4 encoding. Claude
// and Gemini tokenise differently; the count is only used for budgeting.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter returns a counter; on codec failure it falls back to a
// four-characters-per-token estimate.
func NewTokenCounter() *TokenCounter {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{codec: codec}
}

// Count returns the token count of text.
func (tc *TokenCounter) Count(text string) int {
	if tc.codec == nil {
		return len([]rune(text)) / 4
	}
	n, err := tc.codec.Count(text)
	if err != nil {
		return len([]rune(text)) / 4
	}
	return n
}

// Truncate cuts text to at most limit tokens.
func (tc *TokenCounter) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if tc.codec == nil {
		r := []rune(text)
		if len(r) <= limit*4 {
			return text
		}
		return string(r[:limit*4])
	}
	ids, _, err := tc.codec.Encode(text)
	if err != nil || len(ids) <= limit {
		return text
	}
	out, err := tc.codec.Decode(ids[:limit])
	if err != nil {
		return text
	}
	// a cut inside a multi-byte character leaves an invalid tail
	return strings.ToValidUTF8(out, "")
}
