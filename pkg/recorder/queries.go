package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/events"
)

// RecentAnnouncements returns up to limit announcements of the current run,
// newest first.
func (s *Store) RecentAnnouncements(ctx context.Context, limit int) ([]events.FusionAnnouncement, error) {
	id, err := s.currentRun()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp_ms, text, kind, priority, track_ids FROM announcements
		 WHERE run_id = ? ORDER BY timestamp_ms DESC, id DESC LIMIT ?`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.FusionAnnouncement
	for rows.Next() {
		var a events.FusionAnnouncement
		var kind, ids string
		if err := rows.Scan(&a.TimestampMs, &a.Text, &kind, &a.Priority, &ids); err != nil {
			return nil, err
		}
		a.Kind = events.Kind(kind)
		if err := json.Unmarshal([]byte(ids), &a.SourceTrackIDs); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Metrics returns up to limit values of the named metric in the current run,
// newest first.
func (s *Store) Metrics(ctx context.Context, name string, limit int) ([]events.SystemMetric, error) {
	id, err := s.currentRun()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp_ms, value, tags FROM metrics
		 WHERE run_id = ? AND name = ? ORDER BY timestamp_ms DESC, id DESC LIMIT ?`, id, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.SystemMetric
	for rows.Next() {
		m := events.SystemMetric{Name: name}
		var tags sql.NullString
		if err := rows.Scan(&m.TimestampMs, &m.Value, &tags); err != nil {
			return nil, err
		}
		if tags.Valid {
			if err := json.Unmarshal([]byte(tags.String), &m.Tags); err != nil {
				return nil, err
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SceneCount returns the number of scene descriptions in the current run.
func (s *Store) SceneCount(ctx context.Context) (int, error) {
	id, err := s.currentRun()
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scenes WHERE run_id = ?`, id).Scan(&n)
	return n, err
}

// Runs lists every run, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, started_at, ended_at FROM runs ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Source, &started, &ended); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			t := time.UnixMilli(ended.Int64)
			r.EndedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
