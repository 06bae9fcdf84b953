// Package app wires the guidance pipeline together from a config.Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/config"
	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/clock"
	"github.com/teslashibe/go-wayfinder/pkg/control"
	"github.com/teslashibe/go-wayfinder/pkg/control/handler"
	"github.com/teslashibe/go-wayfinder/pkg/debug"
	"github.com/teslashibe/go-wayfinder/pkg/detection"
	"github.com/teslashibe/go-wayfinder/pkg/detection/yolo"
	"github.com/teslashibe/go-wayfinder/pkg/framebus"
	"github.com/teslashibe/go-wayfinder/pkg/fusion"
	"github.com/teslashibe/go-wayfinder/pkg/navigation"
	"github.com/teslashibe/go-wayfinder/pkg/recorder"
	"github.com/teslashibe/go-wayfinder/pkg/remote"
	"github.com/teslashibe/go-wayfinder/pkg/resultbus"
	"github.com/teslashibe/go-wayfinder/pkg/scene"
	"github.com/teslashibe/go-wayfinder/pkg/source"
	"github.com/teslashibe/go-wayfinder/pkg/source/capture"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
	"github.com/teslashibe/go-wayfinder/pkg/telemetry"
	"github.com/teslashibe/go-wayfinder/pkg/tracking"
	"github.com/teslashibe/go-wayfinder/pkg/tts"
	"github.com/teslashibe/go-wayfinder/pkg/voice"
	"github.com/teslashibe/go-wayfinder/pkg/web"
)

const (
	// StopTimeout bounds how long Shutdown waits for stage tasks.
	StopTimeout = 5 * time.Second

	// Drain is how long Run keeps going after a finite source ends so the
	// last announcements are still spoken.
	Drain = time.Second
)

// App is a configured pipeline.
type App struct {
	cfg    config.Config
	logger *slog.Logger
	base   *slog.Logger // unscoped; components add their own component attr

	env      stage.Env
	pipeline *stage.Pipeline

	reader   source.Reader
	player   *source.Player
	remote   *remote.Hub
	detector detection.Detector
	provider tts.Provider
	speaker  *voice.Speaker
	store    *recorder.Store
	agg      *telemetry.Aggregator
	server   *web.Server

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New validates cfg and returns an uninitialized App.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Source.Kind == config.SourceRemote && !cfg.Server.Enabled {
		return nil, &config.ValidationError{Field: "server.enabled", Reason: "must be true for the remote source"}
	}

	debug.Enabled = cfg.Log.Level == "debug"
	debug.Tracking = cfg.Log.DebugTracking

	if logger == nil {
		logger = log.L()
	}
	return &App{
		cfg:      cfg,
		logger:   log.Or(logger, "app"),
		base:     logger,
		shutdown: make(chan struct{}),
	}, nil
}

// Init opens the source, detector, voice and store and assembles the
// pipeline. Call Shutdown even if Init fails.
func (a *App) Init(ctx context.Context) error {
	if err := a.initSource(); err != nil {
		return fmt.Errorf("source: %w", err)
	}

	fps := a.cfg.Source.FPS
	if a.reader != nil && a.reader.FPS() > 0 {
		fps = a.reader.FPS()
	}
	a.env = stage.Env{
		Frames:  framebus.New(framebus.WithQueueSize(a.cfg.Bus.FrameQueue), framebus.WithLogger(a.base)),
		Results: resultbus.New(resultbus.WithQueueSize(a.cfg.Bus.ResultQueue), resultbus.WithLogger(a.base)),
		Control: control.New(func(s *control.Settings) {
			s.DetectionConfThreshold = a.cfg.Detector.ConfThreshold
			s.TrackerIoUThreshold = a.cfg.Tracker.IoUThreshold
			s.FusionCooldownSeconds = a.cfg.Fusion.CooldownSeconds
		}),
		Clock: clock.New(fps, time.Now()),
	}

	if err := a.initDetector(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	a.initVoice()
	if err := a.initStore(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	a.agg = telemetry.NewAggregator(telemetry.DefaultWindow)

	a.pipeline = stage.NewPipeline(a.env, a.base)
	a.pipeline.Add(
		handler.New(a.base, a.requestShutdown),
		telemetry.NewModule(a.agg, a.cfg.Bus.TelemetryPeriod, a.base),
	)
	if a.store != nil {
		a.pipeline.Add(recorder.NewModule(a.store, a.base))
	}
	a.pipeline.Add(
		a.speaker,
		scene.NewModule(scene.Config{Interval: a.cfg.Scene.Interval, StaleMs: a.cfg.Scene.StaleMs}, a.base),
		fusion.NewModule(a.base),
		navigation.NewModule(a.base),
		tracking.NewModule(a.base,
			tracking.WithMaxAge(a.cfg.Tracker.MaxAge),
			tracking.WithStableHits(a.cfg.Tracker.StableHits),
		),
		detection.NewModule(a.detector, a.base),
	)

	if a.cfg.Server.Enabled {
		a.initServer()
		a.pipeline.Add(web.NewBridge(a.server, a.cfg.Server.FrameEvery, a.base))
	}

	// Producers last so nothing they publish is missed.
	if a.remote != nil {
		a.pipeline.Add(a.remote)
	}
	if a.player != nil {
		a.pipeline.Add(a.player)
	}

	a.logger.Info("pipeline assembled",
		"source", a.cfg.Source.Kind,
		"detector", a.cfg.Detector.Kind,
		"fps", fps,
		"voice", a.provider != nil,
		"store", a.store != nil,
		"server", a.cfg.Server.Enabled,
	)
	return nil
}

func (a *App) initSource() error {
	src := a.cfg.Source
	var (
		r   source.Reader
		err error
	)
	switch src.Kind {
	case config.SourceDir:
		r, err = openReader(source.OpenDirectory(src.Path))
	case config.SourceVideo:
		r, err = openReader(capture.OpenFile(src.Path))
	case config.SourceCamera:
		r, err = openReader(capture.OpenCamera(capture.CameraConfig{
			Device: src.Device,
			Width:  src.Width,
			Height: src.Height,
			FPS:    src.FPS,
		}))
	case config.SourceTicker:
		r, err = openReader(source.NewTicker(src.FPS, src.Width, src.Height, src.Frames))
	case config.SourceRemote:
		a.remote = remote.NewHub(a.base)
		return nil
	default:
		return fmt.Errorf("unknown source %q", src.Kind)
	}
	if err != nil {
		return err
	}
	a.reader = r
	a.player = source.NewPlayer(a.reader, a.base, source.WithLoop(src.Loop))
	return nil
}

// openReader keeps a failed open from leaving a typed nil in a.reader.
func openReader[R source.Reader](r R, err error) (source.Reader, error) {
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (a *App) initDetector() error {
	if a.cfg.Detector.Kind != config.DetectorYOLO {
		a.detector = detection.Stub{}
		return nil
	}
	ycfg := yolo.DefaultConfig()
	ycfg.ModelPath = a.cfg.Detector.ModelPath
	ycfg.NMSThresh = float32(a.cfg.Detector.NMSThreshold)
	d, err := yolo.New(ycfg, a.base)
	if err != nil {
		return err
	}
	a.detector = d
	return nil
}

func (a *App) initVoice() {
	v := a.cfg.Voice
	if v.Provider == "openai" && v.APIKey != "" {
		openai, err := tts.NewOpenAI(
			tts.WithAPIKey(v.APIKey),
			tts.WithVoice(v.Voice),
			tts.WithModel(v.Model),
			tts.WithSpeed(v.Speed),
			tts.WithLogger(a.base),
		)
		if err != nil {
			a.logger.Warn("speech synthesis disabled", "error", err)
		} else if chain, err := tts.NewChain(a.base, openai); err == nil {
			a.provider = chain
		}
	} else if v.Provider != "none" {
		a.logger.Warn("no OPENAI_API_KEY, announcements are text only")
	}

	a.speaker = voice.NewSpeaker(a.provider, a.base, voice.NewLogSink(a.base))
	if a.remote != nil {
		a.speaker.AddSink(a.remote)
	}
}

func (a *App) initStore(ctx context.Context) error {
	if a.cfg.Store.Path == "" {
		return nil
	}
	store, err := recorder.Open(a.cfg.Store.Path, a.base)
	if err != nil {
		return err
	}
	a.store = store
	label := a.cfg.Source.Kind
	if a.cfg.Source.Path != "" {
		label += ":" + a.cfg.Source.Path
	}
	_, err = store.StartRun(ctx, label)
	return err
}

func (a *App) initServer() {
	opts := []web.Option{web.WithMetrics(a.agg)}
	if a.store != nil {
		opts = append(opts, web.WithStore(a.store))
	}
	a.server = web.New(web.Config{
		Addr:      a.cfg.Server.Addr,
		Debug:     a.cfg.Server.Debug,
		StaticDir: a.cfg.Server.StaticDir,
	}, a.env, a.base, opts...)

	a.server.AddStatus("source", func() any { return a.cfg.Source.Kind })
	a.server.AddStatus("voice", func() any { return a.speaker.Stats() })
	if a.store != nil {
		a.server.AddStatus("run", func() any { return a.store.RunID() })
	}
	if a.remote != nil {
		a.remote.RegisterRoutes(a.server.App())
		a.remote.RegisterAPIRoutes(a.server.App().Group("/api"))
		a.server.AddStatus("remote", func() any { return a.remote.Stats() })
	}
}

// Env returns the shared buses, control state and clock.
func (a *App) Env() stage.Env { return a.env }

// Store returns the recorder, or nil when recording is disabled.
func (a *App) Store() *recorder.Store { return a.store }

// Run starts the pipeline and blocks until ctx is done, a shutdown control
// event arrives, or a finite source has played out.
func (a *App) Run(ctx context.Context) error {
	if err := a.pipeline.Start(ctx); err != nil {
		return err
	}
	if a.server != nil {
		go func() {
			if err := a.server.Start(ctx); err != nil {
				a.logger.Error("dashboard server failed", "error", err)
				a.requestShutdown()
			}
		}()
	}

	var finished <-chan struct{}
	if a.player != nil {
		finished = a.player.Finished()
	}

	select {
	case <-ctx.Done():
	case <-a.shutdown:
		a.logger.Info("shutting down on request")
	case <-finished:
		a.logger.Info("source finished")
		t := time.NewTimer(Drain)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		case <-a.shutdown:
		}
	}
	return nil
}

func (a *App) requestShutdown() {
	a.shutdownOnce.Do(func() { close(a.shutdown) })
}

// Shutdown stops the pipeline and closes everything Init opened.
func (a *App) Shutdown() error {
	if a.server != nil {
		a.server.Shutdown()
	}
	if a.pipeline != nil {
		if stuck := a.pipeline.Stop(StopTimeout); len(stuck) > 0 {
			a.logger.Warn("stages did not stop", "tasks", stuck)
		}
	}

	var errs []error
	if a.store != nil {
		if err := a.store.EndRun(context.Background()); err != nil && !errors.Is(err, recorder.ErrNoRun) {
			errs = append(errs, err)
		}
	}
	for _, c := range []io.Closer{a.storeCloser(), a.detector, a.provider, a.reader} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.logger.Info("goodbye")
	return errors.Join(errs...)
}

// storeCloser avoids a typed-nil io.Closer.
func (a *App) storeCloser() io.Closer {
	if a.store == nil {
		return nil
	}
	return a.store
}
