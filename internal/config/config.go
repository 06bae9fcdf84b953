// Package config loads go-wayfinder settings: defaults, then an optional
// YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceDir    = "dir"
	SourceVideo  = "video"
	SourceCamera = "camera"
	SourceTicker = "ticker"
	SourceRemote = "remote"
)

// Detector kinds.
const (
	DetectorStub = "stub"
	DetectorYOLO = "yolo"
)

// Config is the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Source   SourceConfig   `yaml:"source"`
	Detector DetectorConfig `yaml:"detector"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Fusion   FusionConfig   `yaml:"fusion"`
	Scene    SceneConfig    `yaml:"scene"`
	Voice    VoiceConfig    `yaml:"voice"`
	Store    StoreConfig    `yaml:"store"`
	Bus      BusConfig      `yaml:"bus"`
}

type LogConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	DebugTracking bool   `yaml:"debug_tracking"`
}

type ServerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Debug      bool   `yaml:"debug"`
	StaticDir  string `yaml:"static_dir"`
	FrameEvery int    `yaml:"frame_every"`
}

type SourceConfig struct {
	Kind   string  `yaml:"kind"`
	Path   string  `yaml:"path"`
	Device int     `yaml:"device"`
	FPS    float64 `yaml:"fps"`
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	Frames int     `yaml:"frames"` // ticker only; 0 is endless
	Loop   bool    `yaml:"loop"`
}

type DetectorConfig struct {
	Kind          string  `yaml:"kind"`
	ModelPath     string  `yaml:"model_path"`
	ConfThreshold float64 `yaml:"conf_threshold"`
	NMSThreshold  float64 `yaml:"nms_threshold"`
}

type TrackerConfig struct {
	IoUThreshold float64 `yaml:"iou_threshold"`
	MaxAge       int     `yaml:"max_age"`
	StableHits   int     `yaml:"stable_hits"`
}

type FusionConfig struct {
	CooldownSeconds float64 `yaml:"cooldown_seconds"`
}

type SceneConfig struct {
	Interval time.Duration `yaml:"interval"`
	StaleMs  int64         `yaml:"stale_ms"`
}

type VoiceConfig struct {
	Provider string  `yaml:"provider"` // "openai" or "none"
	APIKey   string  `yaml:"-"`
	Voice    string  `yaml:"voice"`
	Model    string  `yaml:"model"`
	Speed    float64 `yaml:"speed"`
}

type StoreConfig struct {
	Path string `yaml:"path"` // empty disables recording
}

type BusConfig struct {
	FrameQueue      int           `yaml:"frame_queue"`
	ResultQueue     int           `yaml:"result_queue"`
	TelemetryPeriod time.Duration `yaml:"telemetry_period"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info"},
		Server: ServerConfig{Enabled: true, Addr: ":8080", FrameEvery: 6},
		Source: SourceConfig{Kind: SourceTicker, FPS: 30, Width: 640, Height: 480},
		Detector: DetectorConfig{
			Kind:          DetectorStub,
			ModelPath:     "models/yolov8n.onnx",
			ConfThreshold: 0.5,
			NMSThreshold:  0.45,
		},
		Tracker: TrackerConfig{IoUThreshold: 0.3, MaxAge: 30, StableHits: 3},
		Fusion:  FusionConfig{CooldownSeconds: 3},
		Scene:   SceneConfig{Interval: 5 * time.Second, StaleMs: 3000},
		Voice:   VoiceConfig{Provider: "openai", Voice: "nova", Model: "tts-1", Speed: 1.1},
		Store:   StoreConfig{Path: "wayfinder.db"},
		Bus:     BusConfig{FrameQueue: 2, ResultQueue: 256, TelemetryPeriod: 5 * time.Second},
	}
}

// Load returns Default overlaid with the YAML file at path (skipped when
// path is empty) and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Log.Level = getEnv("WAYFINDER_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("WAYFINDER_LOG_FORMAT", c.Log.Format)
	c.Server.Addr = getEnv("WAYFINDER_ADDR", c.Server.Addr)
	c.Server.Debug = getEnvBool("WAYFINDER_DEBUG", c.Server.Debug)
	c.Source.Kind = getEnv("WAYFINDER_SOURCE", c.Source.Kind)
	c.Source.Path = getEnv("WAYFINDER_SOURCE_PATH", c.Source.Path)
	c.Source.FPS = getEnvFloat("WAYFINDER_FPS", c.Source.FPS)
	c.Detector.Kind = getEnv("WAYFINDER_DETECTOR", c.Detector.Kind)
	c.Detector.ModelPath = getEnv("WAYFINDER_MODEL_PATH", c.Detector.ModelPath)
	c.Detector.ConfThreshold = getEnvFloat("WAYFINDER_CONF_THRESHOLD", c.Detector.ConfThreshold)
	c.Voice.Provider = getEnv("WAYFINDER_TTS_PROVIDER", c.Voice.Provider)
	c.Voice.Voice = getEnv("WAYFINDER_TTS_VOICE", c.Voice.Voice)
	c.Voice.APIKey = getEnv("OPENAI_API_KEY", c.Voice.APIKey)
	c.Store.Path = getEnv("WAYFINDER_DB", c.Store.Path)
}

// ValidationError reports an invalid field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks ranges and enumerations. All problems are joined.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, field, format string, args ...any) {
		if !ok {
			errs = append(errs, invalid(field, format, args...))
		}
	}

	check(c.Source.FPS > 0, "source.fps", "must be positive, got %v", c.Source.FPS)
	switch c.Source.Kind {
	case SourceDir, SourceVideo:
		check(c.Source.Path != "", "source.path", "is required for %s", c.Source.Kind)
	case SourceCamera, SourceTicker, SourceRemote:
	default:
		errs = append(errs, invalid("source.kind", "unknown kind %q", c.Source.Kind))
	}
	switch c.Detector.Kind {
	case DetectorStub, DetectorYOLO:
	default:
		errs = append(errs, invalid("detector.kind", "unknown kind %q", c.Detector.Kind))
	}
	check(unit(c.Detector.ConfThreshold), "detector.conf_threshold", "must be in [0,1], got %v", c.Detector.ConfThreshold)
	check(unit(c.Detector.NMSThreshold), "detector.nms_threshold", "must be in [0,1], got %v", c.Detector.NMSThreshold)
	check(unit(c.Tracker.IoUThreshold), "tracker.iou_threshold", "must be in [0,1], got %v", c.Tracker.IoUThreshold)
	check(c.Tracker.MaxAge >= 0, "tracker.max_age", "must not be negative")
	check(c.Tracker.StableHits >= 1, "tracker.stable_hits", "must be at least 1")
	check(c.Fusion.CooldownSeconds >= 0, "fusion.cooldown_seconds", "must not be negative")
	check(c.Scene.Interval >= 0, "scene.interval", "must not be negative")
	check(c.Bus.FrameQueue >= 1, "bus.frame_queue", "must be at least 1")
	check(c.Bus.ResultQueue >= 1, "bus.result_queue", "must be at least 1")
	check(c.Voice.Speed >= 0.25 && c.Voice.Speed <= 4, "voice.speed", "must be in [0.25,4], got %v", c.Voice.Speed)

	return errors.Join(errs...)
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}
