package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
)

// Deduper recognises redelivered events. Events without an id are never
// duplicates.
type Deduper interface {
	Duplicate(ctx context.Context, id, channel string) bool
}

// MemoryDeduper remembers ids for a fixed time.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDeduper returns a MemoryDeduper keeping ids for ttl.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Duplicate(_ context.Context, id, _ string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = now
	return false
}

// EventMarker is the persistent id log; *persistence.EventLog implements it.
type EventMarker interface {
	MarkSeen(ctx context.Context, id, channel string) (bool, error)
}

// StoreDeduper checks ids against a persistent log so redeliveries after a
// restart are ignored too. A log failure lets the event through.
type StoreDeduper struct {
	log    EventMarker
	logger *logx.Logger
}

func NewStoreDeduper(log EventMarker) *StoreDeduper {
	return &StoreDeduper{log: log, logger: logx.NewLogger("dispatch")}
}

func (d *StoreDeduper) Duplicate(ctx context.Context, id, channel string) bool {
	if id == "" {
		return false
	}
	fresh, err := d.log.MarkSeen(ctx, id, channel)
	if err != nil {
		d.logger.Warn("event id check failed, handling %s anyway: %v", id, err)
		return false
	}
	return !fresh
}
