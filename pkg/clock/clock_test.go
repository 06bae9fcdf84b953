package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameToTimestamp(t *testing.T) {
	start := time.UnixMilli(1_000_000)
	c := New(30, start)

	assert.Equal(t, int64(1_000_000), c.FrameToTimestamp(0))
	assert.Equal(t, int64(1_001_000), c.FrameToTimestamp(30))
	assert.Equal(t, int64(1_000_033), c.FrameToTimestamp(1))
}

func TestFrameDelay(t *testing.T) {
	c := New(25, time.UnixMilli(0))

	assert.Equal(t, 40*time.Millisecond, c.FrameDelay(1))
	assert.Equal(t, 20*time.Millisecond, c.FrameDelay(2))
	assert.Equal(t, 80*time.Millisecond, c.FrameDelay(0.5))
	assert.Equal(t, 40*time.Millisecond, c.FrameDelay(0), "zero speed falls back to 1x")
	assert.Equal(t, 40*time.Millisecond, c.FrameDelay(-3))
}

func TestDefaults(t *testing.T) {
	c := New(0, time.Time{})
	assert.Equal(t, DefaultFPS, c.FPS())
	assert.InDelta(t, time.Now().UnixMilli(), c.StartMs(), 1000)
	assert.InDelta(t, time.Now().UnixMilli(), c.NowMs(), 1000)
}
