package recorder

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
)

// Module is the stage that writes announcements, scenes and metrics to a
// Store. A failed write is logged and the event skipped.
type Module struct {
	stage.Runner
	store  *Store
	logger *slog.Logger
}

// NewModule creates the recorder stage.
func NewModule(store *Store, logger *slog.Logger) *Module {
	return &Module{store: store, logger: log.Or(logger, "recorder")}
}

// Name implements stage.Module.
func (m *Module) Name() string { return "recorder" }

// Start implements stage.Module.
func (m *Module) Start(ctx context.Context, env stage.Env) ([]*stage.Task, error) {
	ctx = m.Begin(ctx)
	sub := env.Results.SubscribeAll()

	return []*stage.Task{stage.Go(m.logger, "recorder.write", func() error {
		defer sub.Close()
		for ev := range sub.Events(ctx) {
			if err := m.write(ev); err != nil {
				m.logger.Warn("write failed", "event", events.TypeName(ev), "error", err)
			}
		}
		return nil
	})}, nil
}

// write uses a background context so events already taken off the queue
// are not lost to cancellation mid-insert.
func (m *Module) write(ev any) error {
	ctx := context.Background()
	switch ev := ev.(type) {
	case events.FusionAnnouncement:
		return m.store.RecordAnnouncement(ctx, ev)
	case events.SceneDescription:
		return m.store.RecordScene(ctx, ev)
	case events.SystemMetric:
		return m.store.RecordMetric(ctx, ev)
	}
	return nil
}
