package sheets

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store, used by tests and dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	table Table
	url   string
}

// NewMemory returns a MemoryStore seeded with t.
func NewMemory(t Table, url string) *MemoryStore {
	return &MemoryStore{table: t.Tail(-1), url: url}
}

func (m *MemoryStore) ReadAll(context.Context) (Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Tail(-1), nil
}

func (m *MemoryStore) Append(_ context.Context, row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table.Rows = append(m.table.Rows, append([]string(nil), row...))
	return nil
}

func (m *MemoryStore) URL() string {
	return m.url
}

// Rows returns a copy of the data rows.
func (m *MemoryStore) Rows() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Tail(-1).Rows
}
