// Package extract recovers JSON records from free-form model output.
//
// Model replies wrap JSON in prose, code fences, or both, and are sometimes
// cut off. Object and Array try progressively looser strategies and fall
// back to placeholder records instead of failing, so callers always get
// something they can render.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
)

// Default column names of the draft sheet that sentinels populate.
const (
	SummaryColumn      = "企画概要"
	FirstSectionColumn = "台本セクション1"

	// FailureMarker is the section text of an array placeholder record.
	FailureMarker = "(generation failed)"

	diagnosticPrefix = 300
)

// Record maps column name to value. Values are whatever JSON decoded to,
// normally strings.
type Record map[string]any

// String returns the field as text; absent or null fields are "".
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns base overlaid with over; over wins on shared keys.
func Merge(base, over Record) Record {
	out := base.Clone()
	for k, v := range over {
		out[k] = v
	}
	return out
}

// IsSentinel reports whether r is an Array placeholder.
func IsSentinel(r Record) bool {
	return r.String(FirstSectionColumn) == FailureMarker
}

// Extractor carries the column names sentinel records are built with.
type Extractor struct {
	Summary      string
	FirstSection string
	logger       *logx.Logger
}

// New returns an Extractor using the default draft columns.
func New() *Extractor {
	return &Extractor{
		Summary:      SummaryColumn,
		FirstSection: FirstSectionColumn,
		logger:       logx.NewLogger("extract"),
	}
}

var defaultExtractor = New()

// Array extracts a list of records, see Extractor.Array.
func Array(raw string, expected int) []Record {
	return defaultExtractor.Array(raw, expected)
}

// Object extracts a single record, see Extractor.Object.
func Object(raw, fallbackTopic string) Record {
	return defaultExtractor.Object(raw, fallbackTopic)
}

var fence = regexp.MustCompile("(?s)```([^\n`]*)\n?(.*?)(?:```|$)")

// fenced returns the first fenced block whose body starts with marker.
func fenced(text string, marker byte) (string, bool) {
	for _, m := range fence.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[2])
		tag := strings.TrimSpace(m[1])
		// "```json[ ... ]" puts the payload on the tag line.
		if tag != "" && (tag[0] == '[' || tag[0] == '{') {
			body = strings.TrimSpace(tag + "\n" + m[2])
		}
		if body != "" && body[0] == marker {
			return body, true
		}
	}
	return "", false
}

// decodeAt decodes a JSON value at each occurrence of marker in turn,
// ignoring whatever follows it, and returns the first one accept takes.
// Values of the wrong shape, such as a "[1]" citation, are skipped.
func decodeAt(text string, marker byte, accept func(any) bool) (any, bool) {
	for off := 0; off < len(text); {
		idx := strings.IndexByte(text[off:], marker)
		if idx < 0 {
			return nil, false
		}
		start := off + idx
		var v any
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&v); err == nil && accept(v) {
			return v, true
		}
		off = start + 1
	}
	return nil, false
}

// candidates returns the fenced body starting with marker, if any, followed
// by the whole text, so a fenced block that fails every strategy does not
// hide a payload elsewhere.
func candidates(raw string, marker byte) []string {
	text := strings.TrimSpace(raw)
	if body, ok := fenced(text, marker); ok && body != text {
		return []string{body, text}
	}
	return []string{text}
}

func isRecord(v any) bool {
	_, ok := asRecord(v)
	return ok
}

func isRecords(v any) bool {
	_, ok := v.([]any)
	if !ok {
		return false
	}
	_, ok = asRecords(v)
	return ok
}

func asRecord(v any) (Record, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return Record(m), true
}

func asRecords(v any) ([]Record, bool) {
	switch t := v.(type) {
	case []any:
		out := make([]Record, 0, len(t))
		for _, item := range t {
			rec, ok := asRecord(item)
			if !ok {
				return nil, false
			}
			out = append(out, rec)
		}
		return out, len(out) > 0
	case map[string]any:
		return []Record{Record(t)}, true
	}
	return nil, false
}

// Array returns the records encoded in raw. Strategies, first success wins:
// a direct parse (a lone object becomes a singleton), the first embedded
// array of objects, then the first embedded object. They run on a fenced
// block starting with '[' first and on the whole text after that. When all
// fail it logs the head of raw and returns `expected` placeholders; an empty
// array counts as a failure.
func (e *Extractor) Array(raw string, expected int) []Record {
	for _, text := range candidates(raw, '[') {
		if recs, ok := arrayFrom(text); ok {
			return recs
		}
	}

	e.logger.Warn("could not parse JSON array, check the stop reason (first %d chars): %q", diagnosticPrefix, head(raw))
	out := make([]Record, expected)
	for i := range out {
		out[i] = Record{
			e.Summary:      fmt.Sprintf("Proposal %d", i+1),
			e.FirstSection: FailureMarker,
		}
	}
	return out
}

func arrayFrom(text string) ([]Record, bool) {
	var direct any
	if err := json.Unmarshal([]byte(text), &direct); err == nil {
		if recs, ok := asRecords(direct); ok {
			return recs, true
		}
	}
	if v, ok := decodeAt(text, '[', isRecords); ok {
		recs, _ := asRecords(v)
		return recs, true
	}
	if v, ok := decodeAt(text, '{', isRecord); ok {
		rec, _ := asRecord(v)
		return []Record{rec}, true
	}
	return nil, false
}

// Object returns the record encoded in raw, using the same direct and
// embedded strategies as Array on a fenced block and then the whole text.
// On failure the result carries fallbackTopic as its summary and the raw
// text as its first section; callers recognise it with IsFallback.
func (e *Extractor) Object(raw, fallbackTopic string) Record {
	for _, text := range candidates(raw, '{') {
		if rec, ok := objectFrom(text); ok {
			return rec
		}
	}

	e.logger.Warn("could not parse JSON object (first %d chars): %q", diagnosticPrefix, head(raw))
	return Record{
		e.Summary:      fallbackTopic,
		e.FirstSection: raw,
	}
}

func objectFrom(text string) (Record, bool) {
	var direct any
	if err := json.Unmarshal([]byte(text), &direct); err == nil {
		if rec, ok := asRecord(direct); ok {
			return rec, true
		}
	}
	if v, ok := decodeAt(text, '{', isRecord); ok {
		rec, _ := asRecord(v)
		return rec, true
	}
	return nil, false
}

// IsFallback reports whether r is the Object failure record for raw: its
// first section holds the unparsed reply.
func (e *Extractor) IsFallback(r Record, raw string) bool {
	return len(r) == 2 && r.String(e.FirstSection) == raw
}

// IsFallback is Extractor.IsFallback with the default columns.
func IsFallback(r Record, raw string) bool {
	return defaultExtractor.IsFallback(r, raw)
}

func head(s string) string {
	r := []rune(s)
	if len(r) > diagnosticPrefix {
		r = r[:diagnosticPrefix]
	}
	return string(r)
}
