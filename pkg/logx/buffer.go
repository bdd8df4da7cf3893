package logx

import (
	"strings"
	"sync"
	"time"
)

type ring struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
}

func newRing(max int) *ring {
	return &ring{max: max}
}

func (r *ring) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
}

// Recent returns buffered entries, filtered by component prefix and time when set.
func Recent(component string, since time.Time) []Entry {
	recent.mu.RLock()
	defer recent.mu.RUnlock()

	out := make([]Entry, 0, len(recent.entries))
	for i := range recent.entries {
		e := recent.entries[i]
		if component != "" && !strings.HasPrefix(e.Component, component) {
			continue
		}
		if !since.IsZero() {
			ts, err := time.Parse(TimestampFormat, e.Timestamp)
			if err != nil || ts.Before(since) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
