// Package recorder persists announcements, scene descriptions and metrics
// to SQLite so a run can be reviewed afterwards.
package recorder

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoRun is returned when recording before StartRun.
var ErrNoRun = errors.New("recorder: no run started")

// Run is one pipeline session.
type Run struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Store is a SQLite-backed recorder.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu    sync.RWMutex
	runID string
}

// Open opens or creates the database at path and migrates it to the latest
// schema. Use ":memory:" for a throwaway store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	// One connection: SQLite serializes writers anyway and ":memory:" is
	// per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("recorder: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: log.Or(logger, "recorder")}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("recorder: load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("recorder: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("recorder: migrate: %w", err)
	}
	// m is not closed: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("recorder: migrate up: %w", err)
	}
	version, _, _ := m.Version()
	s.logger.Debug("schema ready", "version", version)
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun opens a new run and makes it current.
func (s *Store) StartRun(ctx context.Context, source string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, started_at) VALUES (?, ?, ?)`,
		id, source, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("recorder: start run: %w", err)
	}
	s.mu.Lock()
	s.runID = id
	s.mu.Unlock()
	s.logger.Info("run started", "run", id, "source", source)
	return id, nil
}

// EndRun stamps the end time of the current run.
func (s *Store) EndRun(ctx context.Context) error {
	id, err := s.currentRun()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE runs SET ended_at = ? WHERE id = ?`, time.Now().UnixMilli(), id)
	return err
}

// RunID returns the current run, or "" before StartRun.
func (s *Store) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

func (s *Store) currentRun() (string, error) {
	id := s.RunID()
	if id == "" {
		return "", ErrNoRun
	}
	return id, nil
}

// RecordAnnouncement stores an announcement in the current run.
func (s *Store) RecordAnnouncement(ctx context.Context, a events.FusionAnnouncement) error {
	id, err := s.currentRun()
	if err != nil {
		return err
	}
	ids, _ := json.Marshal(nonNil(a.SourceTrackIDs))
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO announcements (run_id, timestamp_ms, text, kind, priority, track_ids) VALUES (?, ?, ?, ?, ?, ?)`,
		id, a.TimestampMs, a.Text, string(a.Kind), a.Priority, string(ids))
	return err
}

// RecordScene stores a scene description in the current run.
func (s *Store) RecordScene(ctx context.Context, d events.SceneDescription) error {
	id, err := s.currentRun()
	if err != nil {
		return err
	}
	ids, _ := json.Marshal(nonNil(d.TrackIDs))
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scenes (run_id, timestamp_ms, description, object_count, track_ids) VALUES (?, ?, ?, ?, ?)`,
		id, d.TimestampMs, d.Description, d.ObjectCount, string(ids))
	return err
}

// RecordMetric stores a metric in the current run.
func (s *Store) RecordMetric(ctx context.Context, m events.SystemMetric) error {
	id, err := s.currentRun()
	if err != nil {
		return err
	}
	var tags sql.NullString
	if len(m.Tags) > 0 {
		b, _ := json.Marshal(m.Tags)
		tags = sql.NullString{String: string(b), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO metrics (run_id, timestamp_ms, name, value, tags) VALUES (?, ?, ?, ?, ?)`,
		id, m.TimestampMs, m.Name, m.Value, tags)
	return err
}

func nonNil(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}
