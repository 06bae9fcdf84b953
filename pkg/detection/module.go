package detection

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
)

// Module runs a Detector on every frame and publishes DetectionResults.
type Module struct {
	stage.Runner
	detector Detector
	logger   *slog.Logger
}

// NewModule creates the detection stage.
func NewModule(d Detector, logger *slog.Logger) *Module {
	return &Module{detector: d, logger: log.Or(logger, "detection")}
}

// Name implements stage.Module.
func (m *Module) Name() string { return "detection" }

// Start implements stage.Module.
func (m *Module) Start(ctx context.Context, env stage.Env) ([]*stage.Task, error) {
	ctx = m.Begin(ctx)
	sub := env.Frames.Subscribe()

	return []*stage.Task{stage.Go(m.logger, "detection.detect", func() error {
		defer sub.Close()
		for m.Running() {
			frame, ok := sub.Next(ctx)
			if !ok {
				return nil
			}
			m.process(ctx, env, frame)
		}
		return nil
	})}, nil
}

func (m *Module) process(ctx context.Context, env stage.Env, frame events.FramePacket) {
	start := time.Now()
	dets, err := m.detector.Detect(ctx, frame)
	if err != nil {
		m.logger.Warn("detect failed, skipping frame", "frame", frame.FrameID, "error", err)
		return
	}
	latency := time.Since(start)

	threshold := env.Control.Snapshot().DetectionConfThreshold
	dets = Filter(dets, threshold)

	env.Results.Publish(events.DetectionResult{
		FrameID:     frame.FrameID,
		TimestampMs: frame.TimestampMs,
		Detections:  dets,
	})
	env.Results.Publish(events.SystemMetric{
		TimestampMs: frame.TimestampMs,
		Name:        "detection.latency_ms",
		Value:       float64(latency.Microseconds()) / 1000,
	})

	if frame.FrameID%30 == 0 && len(dets) > 0 {
		m.logger.Info("detections", "frame", frame.FrameID, "count", len(dets), "labels", labels(dets))
	}
}

func labels(dets []events.Detection) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range dets {
		if !seen[d.Label] {
			seen[d.Label] = true
			out = append(out, d.Label)
		}
	}
	return out
}
