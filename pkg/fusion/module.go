package fusion

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
)

// MetricEvery is how many announcements pass between count metrics.
const MetricEvery = 100

// Module turns NavigationGuidance into FusionAnnouncements.
//
// One task consumes every event so that a frame's TrackUpdate is always seen
// before the guidance derived from it.
type Module struct {
	stage.Runner
	logger *slog.Logger
	policy *Policy
	stable map[int]bool // track id -> last known stability
}

// NewModule creates the fusion stage.
func NewModule(logger *slog.Logger) *Module {
	return &Module{
		logger: log.Or(logger, "fusion"),
		policy: NewPolicy(),
		stable: make(map[int]bool),
	}
}

// Name implements stage.Module.
func (m *Module) Name() string { return "fusion" }

// Start implements stage.Module.
func (m *Module) Start(ctx context.Context, env stage.Env) ([]*stage.Task, error) {
	ctx = m.Begin(ctx)
	sub := env.Results.SubscribeAll()

	return []*stage.Task{stage.Go(m.logger, "fusion.decide", func() error {
		defer sub.Close()
		for m.Running() {
			ev, ok := sub.Next(ctx)
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case events.TrackUpdate:
				m.stable[ev.TrackID] = ev.IsStable
			case events.TrackLost:
				delete(m.stable, ev.TrackID)
				m.policy.Forget(ev.TrackID)
			case events.NavigationGuidance:
				m.decide(env, ev)
			}
		}
		return nil
	})}, nil
}

func (m *Module) decide(env stage.Env, g events.NavigationGuidance) {
	cooldown := env.Control.Snapshot().CooldownMs()
	if !m.policy.ShouldAnnounce(g.TrackID, g.TimestampMs, g.Urgency, m.stable[g.TrackID], cooldown) {
		return
	}

	n := m.policy.Record(g.TrackID, g.TimestampMs)
	ann := events.FusionAnnouncement{
		TimestampMs:    g.TimestampMs,
		Text:           g.GuidanceText,
		Kind:           KindOf(g.Label),
		Priority:       PriorityOf(g.Urgency),
		SourceTrackIDs: []int{g.TrackID},
	}
	env.Results.Publish(ann)
	m.logger.Debug("announce", "text", ann.Text, "priority", ann.Priority, "track", g.TrackID)

	if n%MetricEvery == 0 {
		env.Results.Publish(events.SystemMetric{
			TimestampMs: g.TimestampMs,
			Name:        "fusion.announcements.count",
			Value:       float64(n),
		})
	}
}
