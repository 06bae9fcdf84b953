// wayfinder - real-time walking guidance from a camera feed
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/teslashibe/go-wayfinder/internal/config"
	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/app"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := parseFlags()
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}
	logger := log.Init(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		logger.Error("initialization failed", "error", err)
		a.Shutdown()
		os.Exit(1)
	}

	runErr := a.Run(ctx)
	if err := a.Shutdown(); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	if runErr != nil {
		logger.Error("runtime error", "error", runErr)
		os.Exit(1)
	}
}

// parseFlags loads the config file named by -config and applies flag
// overrides on top of it.
func parseFlags() (config.Config, error) {
	configPath := flag.String("config", os.Getenv("WAYFINDER_CONFIG"), "YAML config file")
	src := flag.String("source", "", "Frame source: dir, video, camera, ticker, remote")
	path := flag.String("path", "", "Frame directory or video file")
	device := flag.Int("device", -1, "Camera index")
	loop := flag.Bool("loop", false, "Loop finite sources")
	detector := flag.String("detector", "", "Detector: stub or yolo")
	model := flag.String("model", "", "YOLO ONNX model path")
	addr := flag.String("addr", "", "Dashboard listen address")
	noServer := flag.Bool("no-server", false, "Disable the dashboard server")
	db := flag.String("db", "", "Recorder database path")
	noRecord := flag.Bool("no-record", false, "Disable recording")
	debug := flag.Bool("debug", false, "Debug logging and request logs")
	debugTracking := flag.Bool("debug-tracking", false, "Per-frame tracker and navigation logs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if *src != "" {
		cfg.Source.Kind = *src
	}
	if *path != "" {
		cfg.Source.Path = *path
	}
	if *device >= 0 {
		cfg.Source.Device = *device
	}
	if set["loop"] {
		cfg.Source.Loop = *loop
	}
	if *detector != "" {
		cfg.Detector.Kind = *detector
	}
	if *model != "" {
		cfg.Detector.ModelPath = *model
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *noServer {
		cfg.Server.Enabled = false
	}
	if *db != "" {
		cfg.Store.Path = *db
	}
	if *noRecord {
		cfg.Store.Path = ""
	}
	if *debug {
		cfg.Log.Level = "debug"
		cfg.Server.Debug = true
	}
	if *debugTracking {
		cfg.Log.DebugTracking = true
	}
	return cfg, nil
}
