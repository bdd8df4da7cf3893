package session

import (
	"errors"
	"sort"
	"sync"
)

// ErrStale is returned by conditional writes whose generation is no longer
// current, typically because the conversation was cancelled meanwhile.
var ErrStale = errors.New("conversation state changed")

// Store maps conversation id to its Task. Every write bumps the
// conversation's generation, including deletes of absent Tasks, so a
// handler that captured an older generation can detect it was overtaken.
//
// Payloads are treated as immutable: handlers build new values and never
// modify slices or records they got from Get.
type Store struct {
	mu    sync.Mutex
	tasks map[string]Task
	gens  map[string]uint64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		tasks: make(map[string]Task),
		gens:  make(map[string]uint64),
	}
}

// Get returns the Task for id, if any.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Snapshot returns the Task (if any) together with the current generation.
func (s *Store) Snapshot(id string) (Task, bool, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok, s.gens[id]
}

// Generation returns the current generation of id.
func (s *Store) Generation(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[id]
}

// Current reports whether gen is still the generation of id.
func (s *Store) Current(id string, gen uint64) bool {
	return s.Generation(id) == gen
}

// Set stores t unconditionally and returns the new generation.
func (s *Store) Set(id string, t Task) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id] = t
	s.gens[id]++
	return s.gens[id]
}

// SetIf stores t only if gen is current. It returns the new generation.
func (s *Store) SetIf(id string, gen uint64, t Task) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[id] != gen {
		return s.gens[id], ErrStale
	}
	s.tasks[id] = t
	s.gens[id]++
	return s.gens[id], nil
}

// Delete removes the Task for id and reports whether one existed. The
// generation advances either way.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	delete(s.tasks, id)
	s.gens[id]++
	return ok
}

// DeleteIf removes the Task only if gen is current and returns the new generation.
func (s *Store) DeleteIf(id string, gen uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[id] != gen {
		return s.gens[id], ErrStale
	}
	delete(s.tasks, id)
	s.gens[id]++
	return s.gens[id], nil
}

// IDs lists conversations that currently hold a Task, sorted.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of stored Tasks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
