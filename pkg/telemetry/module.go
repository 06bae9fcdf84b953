package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/resultbus"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
)

// Bus health metric names.
const (
	MetricFramesPublished  = "framebus.published"
	MetricFramesDropped    = "framebus.dropped"
	MetricResultsPublished = "resultbus.published"
	MetricResultsDropped   = "resultbus.dropped"
)

// Module feeds SystemMetrics into an Aggregator and periodically publishes
// bus health.
type Module struct {
	stage.Runner
	agg      *Aggregator
	interval time.Duration
	logger   *slog.Logger
}

// NewModule creates the telemetry stage. interval <= 0 disables the health
// report.
func NewModule(agg *Aggregator, interval time.Duration, logger *slog.Logger) *Module {
	return &Module{agg: agg, interval: interval, logger: log.Or(logger, "telemetry")}
}

// Aggregator returns the aggregator the module feeds.
func (m *Module) Aggregator() *Aggregator { return m.agg }

// Name implements stage.Module.
func (m *Module) Name() string { return "telemetry" }

// Start implements stage.Module.
func (m *Module) Start(ctx context.Context, env stage.Env) ([]*stage.Task, error) {
	ctx = m.Begin(ctx)
	sub := resultbus.SubscribeType[events.SystemMetric](env.Results)

	collect := stage.Go(m.logger, "telemetry.collect", func() error {
		defer sub.Close()
		for metric := range sub.Events(ctx) {
			m.agg.Add(metric.Name, metric.Value)
		}
		return nil
	})

	tasks := []*stage.Task{collect}
	if m.interval > 0 {
		tasks = append(tasks, stage.Go(m.logger, "telemetry.health", func() error {
			ticker := time.NewTicker(m.interval)
			defer ticker.Stop()
			for m.Running() {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					m.report(env)
				}
			}
			return nil
		}))
	}
	return tasks, nil
}

func (m *Module) report(env stage.Env) {
	var ts int64
	if env.Clock != nil {
		ts = env.Clock.NowMs()
	} else {
		ts = time.Now().UnixMilli()
	}

	var metrics []events.SystemMetric
	if env.Frames != nil {
		fs := env.Frames.Stats()
		metrics = append(metrics,
			events.SystemMetric{TimestampMs: ts, Name: MetricFramesPublished, Value: float64(fs.Published)},
			events.SystemMetric{TimestampMs: ts, Name: MetricFramesDropped, Value: float64(fs.Dropped)},
		)
	}
	rs := env.Results.Stats()
	metrics = append(metrics,
		events.SystemMetric{TimestampMs: ts, Name: MetricResultsPublished, Value: float64(rs.Published)},
		events.SystemMetric{TimestampMs: ts, Name: MetricResultsDropped, Value: float64(rs.Dropped)},
	)
	for _, mt := range metrics {
		env.Results.Publish(mt)
	}
	m.logger.Debug("bus health", "results_published", rs.Published, "results_dropped", rs.Dropped)
}
