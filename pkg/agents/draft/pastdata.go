package draft

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/sheets"
)

// Sheet columns the pipeline treats specially.
const (
	ColNumber   = "台本No."
	ColDate     = "投稿日"
	ColRefURL   = "参考動画URL"
	ColMedium   = "媒体"
	ColFormat   = "企画FMT"
	ColSummary  = "企画概要"
	ColHookOpen = "視聴開始の仕掛け"
	ColHookKeep = "視聴維持の仕掛け"
	ColHookTalk = "コメント誘発の仕掛け"

	// SectionPrefix starts every script section column, e.g. 台本セクション1.
	SectionPrefix = "台本セクション"
	// sectionMarker finds section keys in model output, which sometimes
	// drops the prefix.
	sectionMarker = "セクション"
)

// Limits applied to past data before it goes into prompts.
const (
	PastRows       = 50
	summaryColumns = 12
	sampleRows     = 2
	existingRows   = 30
	existingKeep   = 20
	existingChars  = 80
)

var autoColumns = map[string]bool{ColNumber: true, ColDate: true, ColRefURL: true}

// IsAutoColumn reports whether the pipeline fills col itself.
func IsAutoColumn(col string) bool {
	return autoColumns[col]
}

// IsSectionColumn reports whether col holds script text.
func IsSectionColumn(col string) bool {
	return strings.Contains(col, SectionPrefix)
}

// Summary renders the first twelve columns of t, tab separated, header first.
func Summary(t sheets.Table) string {
	if t.Empty() {
		return ""
	}
	n := min(summaryColumns, len(t.Header))
	lines := make([]string, 0, len(t.Rows)+1)
	lines = append(lines, strings.Join(t.Header[:n], "\t"))
	for _, r := range t.Rows {
		cells := make([]string, n)
		for i := range cells {
			cells[i] = sheets.Cell(r, i)
		}
		lines = append(lines, strings.Join(cells, "\t"))
	}
	return strings.Join(lines, "\n")
}

// SummaryColumns are the generated columns minus script sections.
func SummaryColumns(header []string) []string {
	var out []string
	for _, h := range header {
		if h != "" && !IsAutoColumn(h) && !IsSectionColumn(h) {
			out = append(out, h)
		}
	}
	return out
}

// GeneratedColumns are every column the model fills.
func GeneratedColumns(header []string) []string {
	var out []string
	for _, h := range header {
		if h != "" && !IsAutoColumn(h) {
			out = append(out, h)
		}
	}
	return out
}

// SectionColumns are the script text columns in sheet order.
func SectionColumns(header []string) []string {
	var out []string
	for _, h := range header {
		if IsSectionColumn(h) {
			out = append(out, h)
		}
	}
	return out
}

// Samples renders the last two rows restricted to cols, each value cut to
// limit characters. ellipsis is appended to cut values.
func Samples(t sheets.Table, cols []string, limit int, ellipsis string) string {
	rows := t.Tail(sampleRows).Rows
	var parts []string
	for i, r := range rows {
		var lines []string
		for _, c := range cols {
			v := sheets.Cell(r, t.Index(c))
			if v == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("  %s: %s", c, cut(v, limit, ellipsis)))
		}
		if len(lines) > 0 {
			parts = append(parts, fmt.Sprintf("--- Past row %d ---\n%s", i+1, strings.Join(lines, "\n")))
		}
	}
	if len(parts) == 0 {
		return "(none)"
	}
	return strings.Join(parts, "\n\n")
}

// SectionLengths reports the average character count of each section column.
func SectionLengths(t sheets.Table) string {
	var lines []string
	for _, h := range SectionColumns(t.Header) {
		idx := t.Index(h)
		total, n := 0, 0
		for _, r := range t.Rows {
			if v := sheets.Cell(r, idx); v != "" {
				total += utf8.RuneCountInString(v)
				n++
			}
		}
		if n > 0 {
			lines = append(lines, fmt.Sprintf("  %s: about %d characters", h, total/n))
		}
	}
	if len(lines) == 0 {
		return "  (no data)"
	}
	return strings.Join(lines, "\n")
}

// ExistingTopics lists recent themes so research avoids repeating them.
// The first of 企画概要, テーマ, タイトル present in the header is used.
func ExistingTopics(t sheets.Table) []string {
	idx := -1
	for _, c := range []string{ColSummary, "テーマ", "タイトル"} {
		if idx = t.Index(c); idx >= 0 {
			break
		}
	}
	if idx < 0 {
		return nil
	}
	var out []string
	for _, r := range t.Tail(existingRows).Rows {
		if v := sheets.Cell(r, idx); v != "" {
			out = append(out, cut(v, existingChars, ""))
		}
	}
	if len(out) > existingKeep {
		out = out[len(out)-existingKeep:]
	}
	return out
}

func cut(s string, limit int, ellipsis string) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + ellipsis
}
