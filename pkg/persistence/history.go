package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/estimate"
)

// HistoryLog is the SQLite estimate.Log.
type HistoryLog struct {
	db *DB
}

// History returns the run history backed by d.
func (d *DB) History() *HistoryLog {
	return &HistoryLog{db: d}
}

// Load returns every record of kind in insertion order.
func (h *HistoryLog) Load(ctx context.Context, kind estimate.Kind) ([]estimate.Record, error) {
	rows, err := h.db.db.QueryContext(ctx, `
		SELECT recorded_at, topic, elapsed_seconds, cost_usd, cost_jpy
		FROM estimate_records WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []estimate.Record
	for rows.Next() {
		var (
			rec        estimate.Record
			recordedAt string
		)
		if err := rows.Scan(&recordedAt, &rec.Topic, &rec.ElapsedSeconds, &rec.CostUSD, &rec.CostJPY); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", recordedAt, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Append inserts rec as one row.
func (h *HistoryLog) Append(ctx context.Context, kind estimate.Kind, rec estimate.Record) error {
	_, err := h.db.db.ExecContext(ctx, `
		INSERT INTO estimate_records (kind, recorded_at, topic, elapsed_seconds, cost_usd, cost_jpy)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(kind), rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Topic,
		rec.ElapsedSeconds, rec.CostUSD, rec.CostJPY)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}
