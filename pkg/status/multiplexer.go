// Package status keeps a live registry of conversation progress and fans
// every change out to observers (terminal panel, log, metrics).
package status

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Labels used by the pipeline.
const (
	LabelConfirming = "confirming"
	LabelRunning    = "running"
	LabelSelecting  = "awaiting selection"
	LabelReviewing  = "awaiting review"
	LabelAsking     = "awaiting answer"
)

// Row is one conversation line of the status panel.
type Row struct {
	ConversationID string    `json:"conversation_id"`
	Label          string    `json:"label"`
	Step           string    `json:"step"`
	CostUSD        float64   `json:"cost_usd"`
	Since          time.Time `json:"since"`
}

// ChangeKind says what happened to a row.
type ChangeKind int

const (
	Upserted ChangeKind = iota
	Removed
)

// Change describes one mutation.
type Change struct {
	Kind ChangeKind
	Row  Row
}

// Observer receives every change with the full sorted snapshot taken under
// the registry lock. Implementations must not call back into the Multiplexer.
type Observer interface {
	OnUpdate(change Change, snapshot []Row)
}

// LineObserver additionally receives free-form log lines.
type LineObserver interface {
	Observer
	OnLine(line string)
}

// Multiplexer is the registry. It is purely observational: nothing reads it
// to make decisions.
type Multiplexer struct {
	mu        sync.Mutex
	rows      map[string]Row
	observers []Observer
	now       func() time.Time
}

// New returns a Multiplexer notifying observers in order.
func New(observers ...Observer) *Multiplexer {
	return &Multiplexer{
		rows:      make(map[string]Row),
		observers: observers,
		now:       time.Now,
	}
}

// Upsert sets the row of id. Since is kept while the label is unchanged.
func (m *Multiplexer) Upsert(id, label, step string, costUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := Row{ConversationID: id, Label: label, Step: step, CostUSD: costUSD, Since: m.now()}
	if prev, ok := m.rows[id]; ok && prev.Label == label {
		row.Since = prev.Since
	}
	m.rows[id] = row
	m.notify(Change{Kind: Upserted, Row: row})
}

// Remove drops the row of id; removing an absent row is a no-op.
func (m *Multiplexer) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return
	}
	delete(m.rows, id)
	m.notify(Change{Kind: Removed, Row: row})
}

// Logf forwards a line to observers that render logs next to the panel.
func (m *Multiplexer) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.observers {
		if lo, ok := o.(LineObserver); ok {
			lo.OnLine(line)
		}
	}
}

// Snapshot returns the rows sorted by conversation id.
func (m *Multiplexer) Snapshot() []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

// Get returns the row of id.
func (m *Multiplexer) Get(id string) (Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	return r, ok
}

func (m *Multiplexer) snapshot() []Row {
	out := make([]Row, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConversationID < out[j].ConversationID })
	return out
}

func (m *Multiplexer) notify(c Change) {
	if len(m.observers) == 0 {
		return
	}
	snap := m.snapshot()
	for _, o := range m.observers {
		o.OnUpdate(c, snap)
	}
}
