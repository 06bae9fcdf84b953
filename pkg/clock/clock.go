// Package clock maps frame indices to wall-clock timestamps and playback delays.
package clock

import "time"

// DefaultFPS is used when a source does not report a frame rate.
const DefaultFPS = 30.0

// Clock converts frame ids to millisecond timestamps relative to a start time.
type Clock struct {
	fps     float64
	startMs int64
	now     func() time.Time
}

// New creates a clock. A zero start means now; fps <= 0 means DefaultFPS.
func New(fps float64, start time.Time) *Clock {
	if fps <= 0 {
		fps = DefaultFPS
	}
	if start.IsZero() {
		start = time.Now()
	}
	return &Clock{fps: fps, startMs: start.UnixMilli(), now: time.Now}
}

// FPS returns the frame rate.
func (c *Clock) FPS() float64 { return c.fps }

// StartMs returns the start time in unix milliseconds.
func (c *Clock) StartMs() int64 { return c.startMs }

// FrameToTimestamp returns start + frameID*1000/fps in unix milliseconds.
func (c *Clock) FrameToTimestamp(frameID int) int64 {
	return c.startMs + int64(float64(frameID)*1000/c.fps)
}

// FrameDelay returns the sleep between frames at the given playback speed.
// A speed <= 0 is treated as 1.
func (c *Clock) FrameDelay(speed float64) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	return time.Duration(float64(time.Second) / c.fps / speed)
}

// NowMs returns the current wall-clock time in unix milliseconds.
func (c *Clock) NowMs() int64 {
	return c.now().UnixMilli()
}
