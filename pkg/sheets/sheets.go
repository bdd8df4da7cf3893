// Package sheets reads and appends rows of the draft spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured means no spreadsheet id was configured. Callers treat it
// as a soft warning and continue without past data.
var ErrNotConfigured = errors.New("spreadsheet not configured")

// Store is a header-first table of string cells.
type Store interface {
	// ReadAll returns the whole table. An empty sheet is an empty Table.
	ReadAll(ctx context.Context) (Table, error)
	// Append adds one row after the last used row.
	Append(ctx context.Context, row []string) error
	// URL links to the sheet for humans; "" when unknown.
	URL() string
}

// Table holds the header row and the data rows below it.
type Table struct {
	Header []string
	Rows   [][]string
}

// Empty reports whether the table has neither header nor rows.
func (t Table) Empty() bool {
	return len(t.Header) == 0 && len(t.Rows) == 0
}

// Index returns the column position of name, or -1.
func (t Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Cell returns row[col], or "" when the row is short.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// Tail returns a copy of t keeping only the last n rows.
func (t Table) Tail(n int) Table {
	rows := t.Rows
	if n >= 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	out := Table{Header: append([]string(nil), t.Header...)}
	out.Rows = make([][]string, len(rows))
	for i, r := range rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}

// FromValues converts raw API values (header first) into a Table.
func FromValues(values [][]any) Table {
	if len(values) == 0 {
		return Table{}
	}
	t := Table{Header: toStrings(values[0])}
	for _, v := range values[1:] {
		t.Rows = append(t.Rows, toStrings(v))
	}
	return t
}

func toStrings(vals []any) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		if v != nil {
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}
