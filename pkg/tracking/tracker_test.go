package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/control"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/resultbus"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
)

func det(label string, b events.BBox) events.Detection {
	return events.Detection{Label: label, Confidence: 0.9, BBox: b}
}

func result(frame int, dets ...events.Detection) events.DetectionResult {
	return events.DetectionResult{FrameID: frame, TimestampMs: int64(frame) * 33, Detections: dets}
}

func TestEmptyCycles(t *testing.T) {
	tr := New()
	step := tr.Step(result(0), 0.3)
	assert.Empty(t, step.Updates)
	assert.Empty(t, step.Lost)
	assert.Equal(t, 0, tr.Len())
}

func TestDetectionsWithoutTracksCreateTracks(t *testing.T) {
	tr := New()
	step := tr.Step(result(0, det("person", box(0.1, 0.1, 0.2, 0.2)), det("chair", box(0.6, 0.6, 0.2, 0.2))), 0.3)

	require.Len(t, step.Updates, 2)
	assert.Equal(t, 1, step.Updates[0].TrackID)
	assert.Equal(t, 2, step.Updates[1].TrackID)
	assert.Equal(t, "chair", step.Updates[1].Label)
	assert.False(t, step.Updates[0].IsStable)
	assert.Nil(t, step.Updates[0].Velocity)

	// A new track is not a matched pair, so it is aged in its first cycle.
	tk, ok := tr.Get(1)
	require.True(t, ok)
	assert.Equal(t, 0, tk.Hits)
	assert.Equal(t, 1, tk.FramesSinceUpdate)
}

func TestStableOnThirdHitAndStaysStable(t *testing.T) {
	tr := New()
	b := box(0.3, 0.3, 0.2, 0.2)

	tr.Step(result(0, det("person", b)), 0.3)
	for f := 1; f <= 2; f++ {
		s := tr.Step(result(f, det("person", b)), 0.3)
		assert.False(t, s.Updates[0].IsStable, "update %d", f)
		tk, _ := tr.Get(1)
		assert.Equal(t, f, tk.Hits)
		assert.Equal(t, 0, tk.FramesSinceUpdate)
	}

	s3 := tr.Step(result(3, det("person", b)), 0.3)
	assert.True(t, s3.Updates[0].IsStable, "stable on the third consecutive update")

	for f := 4; f < 11; f++ {
		tr.Step(result(f), 0.3)
	}
	tk, ok := tr.Get(1)
	require.True(t, ok)
	assert.True(t, tk.Stable, "missed cycles do not clear stability")
	assert.Equal(t, 0, tk.Hits)
	assert.Equal(t, 7, tk.FramesSinceUpdate)
}

func TestMissedTracksAgeButStay(t *testing.T) {
	tr := New()
	tr.Step(result(0, det("person", box(0.1, 0.1, 0.2, 0.2))), 0.3)
	step := tr.Step(result(1), 0.3)
	assert.Empty(t, step.Lost)
	tk, _ := tr.Get(1)
	assert.Equal(t, 2, tk.FramesSinceUpdate)
}

func TestEvictionAfterMaxAge(t *testing.T) {
	tr := New(WithMaxAge(2))
	tr.Step(result(0, det("person", box(0.1, 0.1, 0.2, 0.2))), 0.3)

	assert.Empty(t, tr.Step(result(1), 0.3).Lost)
	step := tr.Step(result(2), 0.3)
	assert.Equal(t, []int{1}, step.Lost, "creation cycle counts as the first miss")
	assert.Empty(t, tr.ActiveTracks())

	// Ids are never reused.
	next := tr.Step(result(3, det("person", box(0.1, 0.1, 0.2, 0.2))), 0.3)
	assert.Equal(t, 2, next.Updates[0].TrackID)
}

func TestHistoryCapAndVelocity(t *testing.T) {
	tr := New()
	for f := 0; f < 8; f++ {
		x := 0.1 + 0.01*float64(f)
		tr.Step(result(f, det("person", box(x, 0.2, 0.2, 0.2))), 0.3)
	}
	tk, ok := tr.Get(1)
	require.True(t, ok)
	assert.Len(t, tk.History, 5)
	assert.Equal(t, 3, tk.History[0].FrameID)
	assert.Equal(t, 7, tk.History[4].FrameID)

	v := tk.Velocity()
	require.NotNil(t, v)
	assert.InDelta(t, 0.01, v.DX, 1e-9)
	assert.InDelta(t, 0, v.DY, 1e-9)
}

func TestGetReturnsCopy(t *testing.T) {
	tr := New()
	tr.Step(result(0, det("person", box(0.1, 0.1, 0.2, 0.2))), 0.3)
	tk, _ := tr.Get(1)
	tk.History[0].FrameID = 99
	again, _ := tr.Get(1)
	assert.Equal(t, 0, again.History[0].FrameID)
}

func TestModulePublishesUpdatesAndLost(t *testing.T) {
	env := stage.Env{
		Results: resultbus.New(resultbus.WithLogger(log.Discard())),
		Control: control.New(),
	}
	m := NewModule(log.Discard(), WithMaxAge(1), WithMetricEvery(1))
	out := env.Results.SubscribeAll()

	tasks, err := m.Start(context.Background(), env)
	require.NoError(t, err)

	env.Results.Publish(result(0, det("person", box(0.1, 0.1, 0.2, 0.2))))
	env.Results.Publish(result(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var got []any
	for len(got) < 4 {
		ev, ok := out.Next(ctx)
		require.True(t, ok, "timed out, got %v", got)
		switch ev.(type) {
		case events.TrackUpdate, events.TrackLost, events.SystemMetric:
			got = append(got, ev)
		}
	}

	assert.IsType(t, events.TrackUpdate{}, got[0])
	assert.Equal(t, events.SystemMetric{TimestampMs: 0, Name: "tracker.tracks.active", Value: 1}, got[1])
	assert.Equal(t, events.TrackLost{TrackID: 1, FrameID: 1, TimestampMs: 33}, got[2])
	assert.Equal(t, "tracker.tracks.active", got[3].(events.SystemMetric).Name)
	assert.Equal(t, 0.0, got[3].(events.SystemMetric).Value)

	m.Stop()
	<-tasks[0].Done()
}
