package pipeline

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// Tokens are the reply words each phase recognises. The field set matches
// config.TokensConfig so one converts to the other.
type Tokens struct {
	Yes      []string
	No       []string
	Finalize []string
	Cancel   []string
	GoBack   []string
	Help     []string
}

const hintSeparators = "、,， \t"

// normalize folds full-width letters and digits and trims space, so ＯＫ and
// ２ match ok and 2.
func normalize(text string) string {
	return strings.TrimSpace(width.Fold.String(text))
}

func matchAny(text string, set []string) bool {
	text = normalize(text)
	for _, tok := range set {
		if strings.EqualFold(text, normalize(tok)) {
			return true
		}
	}
	return false
}

func (t Tokens) IsYes(text string) bool      { return matchAny(text, t.Yes) }
func (t Tokens) IsNo(text string) bool       { return matchAny(text, t.No) }
func (t Tokens) IsFinalize(text string) bool { return matchAny(text, t.Finalize) }
func (t Tokens) IsCancel(text string) bool   { return matchAny(text, t.Cancel) }
func (t Tokens) IsHelp(text string) bool     { return matchAny(text, t.Help) }

// IsGoBack matches go-back phrases anywhere in text.
func (t Tokens) IsGoBack(text string) bool {
	text = normalize(text)
	for _, p := range t.GoBack {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// Affirm reports whether text confirms, and returns any direction added
// after the confirmation, as in "はい、食べ物系で". The longest matching yes
// token wins. An ASCII token must be followed by a separator so that "yoga"
// does not read as "y".
func (t Tokens) Affirm(text string) (bool, string) {
	text = normalize(text)
	if matchAny(text, t.Yes) {
		return true, ""
	}
	best := ""
	for _, tok := range t.Yes {
		tok = normalize(tok)
		if tok == "" || len(tok) <= len(best) || len(text) < len(tok) {
			continue
		}
		if !strings.EqualFold(text[:len(tok)], tok) {
			continue
		}
		rest := text[len(tok):]
		next, _ := utf8.DecodeRuneInString(rest)
		if isASCII(tok) && !strings.ContainsRune(hintSeparators, next) {
			continue
		}
		best = tok
	}
	if best == "" {
		return false, ""
	}
	return true, strings.Trim(text[len(best):], hintSeparators)
}

// Choice parses a 1-based selection such as "2" or "２".
func Choice(text string) (int, bool) {
	n, err := strconv.Atoi(normalize(text))
	if err != nil {
		return 0, false
	}
	return n, true
}

// JoinHints combines non-empty hints with " / ".
func JoinHints(hints ...string) string {
	var parts []string
	for _, h := range hints {
		if h = strings.TrimSpace(h); h != "" {
			parts = append(parts, h)
		}
	}
	return strings.Join(parts, " / ")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
