package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayfinder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  kind: dir
  path: ./clip
  fps: 15
scene:
  interval: 2s
tracker:
  iou_threshold: 0.4
`), 0o644))

	t.Setenv("WAYFINDER_FPS", "10")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SourceDir, cfg.Source.Kind)
	assert.Equal(t, "./clip", cfg.Source.Path)
	assert.Equal(t, 10.0, cfg.Source.FPS, "environment wins over the file")
	assert.Equal(t, 2*time.Second, cfg.Scene.Interval)
	assert.Equal(t, 0.4, cfg.Tracker.IoUThreshold)
	assert.Equal(t, 3, cfg.Tracker.StableHits, "unset fields keep defaults")
	assert.Equal(t, "sk-test", cfg.Voice.APIKey)
	require.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source: [\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"fps", func(c *Config) { c.Source.FPS = 0 }, "source.fps"},
		{"source kind", func(c *Config) { c.Source.Kind = "webcam" }, "source.kind"},
		{"dir needs path", func(c *Config) { c.Source.Kind = SourceDir }, "source.path"},
		{"detector", func(c *Config) { c.Detector.Kind = "ssd" }, "detector.kind"},
		{"conf", func(c *Config) { c.Detector.ConfThreshold = 1.5 }, "detector.conf_threshold"},
		{"iou", func(c *Config) { c.Tracker.IoUThreshold = -0.1 }, "tracker.iou_threshold"},
		{"cooldown", func(c *Config) { c.Fusion.CooldownSeconds = -1 }, "fusion.cooldown_seconds"},
		{"frame queue", func(c *Config) { c.Bus.FrameQueue = 0 }, "bus.frame_queue"},
		{"result queue", func(c *Config) { c.Bus.ResultQueue = 0 }, "bus.result_queue"},
		{"speed", func(c *Config) { c.Voice.Speed = 10 }, "voice.speed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
