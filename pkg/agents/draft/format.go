package draft

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/extract"
)

var (
	metaColumns = []string{ColMedium, ColFormat, ColSummary}
	hookColumns = []string{ColHookOpen, ColHookKeep, ColHookTalk}
)

// Review previews are cut so a long draft fits one chat message.
const (
	expandPreviewChars = 600
	revisePreviewLimit = 2500
	revisePreviewChars = 500
)

// FormatDisplay renders a draft for chat and for the output file: meta
// columns, hook columns, remaining columns in order, then the script
// sections sorted by their number. order is the sheet header; keys it does
// not list follow in name order.
func FormatDisplay(rec extract.Record, order []string) string {
	var lines []string
	skip := make(map[string]bool)

	for _, k := range metaColumns {
		skip[k] = true
		if v := rec.String(k); v != "" {
			lines = append(lines, fmt.Sprintf("*%s*: %s", k, v))
		}
	}
	for _, k := range hookColumns {
		skip[k] = true
		if v := rec.String(k); v != "" {
			lines = append(lines, fmt.Sprintf("\n*%s*: %s", k, v))
		}
	}

	var sections []string
	for k := range rec {
		if strings.Contains(k, sectionMarker) {
			sections = append(sections, k)
			skip[k] = true
		}
	}
	sort.SliceStable(sections, func(i, j int) bool {
		ni, nj := sectionNumber(sections[i]), sectionNumber(sections[j])
		if ni != nj {
			return ni < nj
		}
		return sections[i] < sections[j]
	})

	for _, k := range orderedKeys(rec, order) {
		if skip[k] || IsAutoColumn(k) {
			continue
		}
		if v := rec.String(k); v != "" {
			lines = append(lines, fmt.Sprintf("\n*%s*: %s", k, v))
		}
	}

	if len(sections) > 0 {
		lines = append(lines, "\n---")
		for _, k := range sections {
			if v := rec.String(k); v != "" {
				lines = append(lines, fmt.Sprintf("\n*【%s】*\n%s", k, v))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// sectionNumber is the digits of key read as one number, 0 when none.
func sectionNumber(key string) int {
	var digits strings.Builder
	for _, r := range key {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			digits.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

func orderedKeys(rec extract.Record, order []string) []string {
	seen := make(map[string]bool, len(rec))
	keys := make([]string, 0, len(rec))
	for _, k := range order {
		if _, ok := rec[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range rec {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// FormatProposals renders the numbered proposal list with selection help.
func FormatProposals(proposals []extract.Record) string {
	var b strings.Builder
	b.WriteString("📋 *Proposals are ready*\n\n")
	for i, p := range proposals {
		summary := p.String(ColSummary)
		if summary == "" {
			summary = fmt.Sprintf("Proposal %d", i+1)
		}
		fmt.Fprintf(&b, "*%d: %s*\n", i+1, cut(summary, 70, ""))
		if f := p.String(ColFormat); f != "" {
			fmt.Fprintf(&b, "　Format: %s\n", cut(f, 50, ""))
		}
		if h := p.String(ColHookOpen); h != "" {
			fmt.Fprintf(&b, "　Opening hook: %s...\n", cut(h, 60, ""))
		}
		b.WriteString("\n")
	}
	b.WriteString("Reply with a number to choose one (e.g. \"2\").\n")
	b.WriteString("Send text instead to regenerate the proposals with that direction.\n")
	b.WriteString("(Send \"キャンセル\" to stop.)")
	return b.String()
}

// ExpandPreview shortens a freshly expanded draft for the review message.
func ExpandPreview(display string) string {
	if len([]rune(display)) > expandPreviewChars {
		return cut(display, expandPreviewChars, "\n\n...(omitted)")
	}
	return display
}

// RevisePreview shortens only very long revised drafts.
func RevisePreview(display string) string {
	if len([]rune(display)) > revisePreviewLimit {
		return cut(display, revisePreviewChars, "\n\n...(the rest is in the file sent on finalize)")
	}
	return display
}

// Topic is the proposal's summary, or "Proposal N" for the n-th (1-based).
func Topic(rec extract.Record, n int) string {
	if s := strings.TrimSpace(rec.String(ColSummary)); s != "" {
		return s
	}
	return fmt.Sprintf("Proposal %d", n)
}
