package tracking

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/debug"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/resultbus"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
)

// Module turns DetectionResults into TrackUpdates and TrackLost events.
type Module struct {
	stage.Runner
	tracker *Tracker
	logger  *slog.Logger
}

// NewModule creates the tracking stage.
func NewModule(logger *slog.Logger, opts ...Option) *Module {
	return &Module{tracker: New(opts...), logger: log.Or(logger, "tracking")}
}

// Name implements stage.Module.
func (m *Module) Name() string { return "tracking" }

// Start implements stage.Module.
func (m *Module) Start(ctx context.Context, env stage.Env) ([]*stage.Task, error) {
	ctx = m.Begin(ctx)
	sub := resultbus.SubscribeType[events.DetectionResult](env.Results)

	return []*stage.Task{stage.Go(m.logger, "tracking.step", func() error {
		defer sub.Close()
		for m.Running() {
			res, ok := sub.Next(ctx)
			if !ok {
				return nil
			}
			m.process(env, res)
		}
		return nil
	})}, nil
}

func (m *Module) process(env stage.Env, res events.DetectionResult) {
	iou := env.Control.Snapshot().TrackerIoUThreshold
	step := m.tracker.Step(res, iou)

	for _, u := range step.Updates {
		env.Results.Publish(u)
	}
	for _, id := range step.Lost {
		env.Results.Publish(events.TrackLost{TrackID: id, FrameID: res.FrameID, TimestampMs: res.TimestampMs})
	}
	if len(step.Lost) > 0 {
		m.logger.Info("tracks evicted", "frame", res.FrameID, "ids", step.Lost, "active", m.tracker.Len())
	}

	debug.Log(m.logger, debug.TrackingArea, "tracking cycle",
		"frame", res.FrameID, "detections", len(res.Detections), "active", m.tracker.Len(), "iou", iou)

	if every := m.tracker.Config().MetricEvery; every > 0 && res.FrameID%every == 0 {
		env.Results.Publish(events.SystemMetric{
			TimestampMs: res.TimestampMs,
			Name:        "tracker.tracks.active",
			Value:       float64(m.tracker.Len()),
		})
	}
}
