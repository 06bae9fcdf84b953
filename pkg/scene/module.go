package scene

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
)

// Config holds scene description settings.
type Config struct {
	Interval time.Duration // Periodic description interval (0 disables the ticker)
	StaleMs  int64         // Drop readings older than this relative to the newest one
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{Interval: 5 * time.Second, StaleMs: 3000}
}

// Module keeps the latest reading per track and publishes SceneDescriptions.
type Module struct {
	stage.Runner
	cfg    Config
	logger *slog.Logger

	// owned by the module task
	latest map[int]events.NavigationGuidance
	nowMs  int64
}

// NewModule creates the scene stage.
func NewModule(cfg Config, logger *slog.Logger) *Module {
	return &Module{
		cfg:    cfg,
		logger: log.Or(logger, "scene"),
		latest: make(map[int]events.NavigationGuidance),
	}
}

// Name implements stage.Module.
func (m *Module) Name() string { return "scene" }

// Start implements stage.Module.
func (m *Module) Start(ctx context.Context, env stage.Env) ([]*stage.Task, error) {
	ctx = m.Begin(ctx)
	sub := env.Results.SubscribeAll()

	var tick <-chan time.Time
	var ticker *time.Ticker
	if m.cfg.Interval > 0 {
		ticker = time.NewTicker(m.cfg.Interval)
		tick = ticker.C
	}

	return []*stage.Task{stage.Go(m.logger, "scene.describe", func() error {
		defer sub.Close()
		if ticker != nil {
			defer ticker.Stop()
		}
		for m.Running() {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-sub.C():
				if !ok {
					return nil
				}
				m.handle(env, ev)
			case <-tick:
				if env.Control.Snapshot().Paused {
					continue
				}
				if d, ok := m.describe(env, false); ok {
					env.Results.Publish(d)
				}
			}
		}
		return nil
	})}, nil
}

func (m *Module) handle(env stage.Env, ev any) {
	switch ev := ev.(type) {
	case events.NavigationGuidance:
		m.latest[ev.TrackID] = ev
		m.nowMs = max(m.nowMs, ev.TimestampMs)
		m.prune()
	case events.TrackLost:
		delete(m.latest, ev.TrackID)
	case events.ControlEvent:
		if ev.Kind != events.ControlDescribeScene {
			return
		}
		if d, ok := m.describe(env, true); ok {
			env.Results.Publish(d)
		}
	}
}

func (m *Module) prune() {
	maps.DeleteFunc(m.latest, func(_ int, g events.NavigationGuidance) bool {
		return m.nowMs-g.TimestampMs > m.cfg.StaleMs
	})
}

// describe builds a description of the current view. With onDemand an empty
// view is reported as a clear path; otherwise nothing is published.
func (m *Module) describe(env stage.Env, onDemand bool) (events.SceneDescription, bool) {
	ids := slices.Sorted(maps.Keys(m.latest))
	entries := make([]events.NavigationGuidance, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, m.latest[id])
	}

	text := Describe(entries)
	if text == "" {
		if !onDemand {
			return events.SceneDescription{}, false
		}
		text = ClearPath
	}

	ts := m.nowMs
	if env.Clock != nil {
		ts = env.Clock.NowMs()
	}
	d := events.SceneDescription{
		TimestampMs: ts,
		Description: text,
		ObjectCount: len(entries),
		TrackIDs:    trackIDs(entries),
	}
	m.logger.Debug("scene", "description", text, "objects", len(entries))
	return d, true
}
