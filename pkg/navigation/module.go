package navigation

import (
	"context"
	"log/slog"
	"slices"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/debug"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
)

// HistorySize is the number of boxes kept per track.
const HistorySize = 5

// Module publishes a NavigationGuidance for every TrackUpdate.
type Module struct {
	stage.Runner
	logger  *slog.Logger
	history map[int][]events.BBox // owned by the module task
}

// NewModule creates the navigation stage.
func NewModule(logger *slog.Logger) *Module {
	return &Module{logger: log.Or(logger, "navigation"), history: make(map[int][]events.BBox)}
}

// Name implements stage.Module.
func (m *Module) Name() string { return "navigation" }

// Start implements stage.Module.
func (m *Module) Start(ctx context.Context, env stage.Env) ([]*stage.Task, error) {
	ctx = m.Begin(ctx)
	sub := env.Results.SubscribeAll()

	return []*stage.Task{stage.Go(m.logger, "navigation.analyze", func() error {
		defer sub.Close()
		for m.Running() {
			ev, ok := sub.Next(ctx)
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case events.TrackUpdate:
				env.Results.Publish(m.observe(ev))
			case events.TrackLost:
				delete(m.history, ev.TrackID)
			}
		}
		return nil
	})}, nil
}

func (m *Module) observe(u events.TrackUpdate) events.NavigationGuidance {
	h := append(m.history[u.TrackID], u.BBox)
	if over := len(h) - HistorySize; over > 0 {
		h = slices.Delete(h, 0, over)
	}
	m.history[u.TrackID] = h

	g := Analyze(u, h)
	debug.Log(m.logger, debug.TrackingArea, "guidance",
		"track", g.TrackID, "zone", g.Zone, "movement", g.Movement, "urgency", g.Urgency)
	return g
}
