// Package debug provides global debug logging flags
package debug

import (
	"context"
	"log/slog"
)

// Enabled controls whether debug logging is active
var Enabled bool

// Tracking controls whether per-frame tracker and navigation logs are shown.
// Use the --debug-tracking flag to enable these very verbose logs.
var Tracking bool

// Area names a group of verbose logs.
type Area int

const (
	General Area = iota
	TrackingArea
)

func on(area Area) bool {
	switch area {
	case TrackingArea:
		return Tracking
	default:
		return Enabled
	}
}

// Log writes msg at info level on logger only if the area is enabled.
func Log(logger *slog.Logger, area Area, msg string, args ...any) {
	if !on(area) || logger == nil {
		return
	}
	logger.Log(context.Background(), slog.LevelInfo, msg, args...)
}
