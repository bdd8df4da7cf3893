package persistence

import (
	"context"
	"fmt"
	"time"
)

// EventLog remembers inbound event ids so redelivered events are ignored
// across restarts.
type EventLog struct {
	db *DB
}

// Events returns the processed-event log backed by d.
func (d *DB) Events() *EventLog {
	return &EventLog{db: d}
}

// MarkSeen records id and reports whether it was new.
func (e *EventLog) MarkSeen(ctx context.Context, id, channel string) (bool, error) {
	res, err := e.db.db.ExecContext(ctx, `
		INSERT INTO processed_events (event_id, channel, received_at) VALUES (?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		id, channel, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("record event %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record event %s: %w", id, err)
	}
	return n == 1, nil
}

// Prune deletes ids older than the cutoff and returns how many were removed.
func (e *EventLog) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := e.db.db.ExecContext(ctx,
		`DELETE FROM processed_events WHERE received_at < ?`,
		olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		e.db.logger.Info("pruned %d processed event ids", n)
	}
	return n, nil
}
