package navigation

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

func box(x, y, w, h float64) events.BBox { return events.BBox{X: x, Y: y, W: w, H: h} }

func TestDirectionOf(t *testing.T) {
	tests := []struct {
		name string
		b    events.BBox
		want events.Direction
	}{
		{"left", box(0.1, 0.3, 0.1, 0.1), events.DirectionLeft},
		{"boundary is center", box(0.28, 0.3, 0.1, 0.1), events.DirectionCenter},
		{"center", box(0.4, 0.3, 0.2, 0.2), events.DirectionCenter},
		{"boundary is right", box(0.61, 0.3, 0.1, 0.1), events.DirectionRight},
		{"right", box(0.8, 0.3, 0.1, 0.1), events.DirectionRight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DirectionOf(tt.b))
		})
	}
}

func TestZoneOf(t *testing.T) {
	assert.Equal(t, events.ZoneNear, ZoneOf(box(0.3, 0.3, 0.4, 0.4)))
	assert.Equal(t, events.ZoneMid, ZoneOf(box(0, 0, 0.5, 0.3)), "0.15 exactly is mid")
	assert.Equal(t, events.ZoneMid, ZoneOf(box(0, 0, 0.3, 0.3)))
	assert.Equal(t, events.ZoneFar, ZoneOf(box(0, 0, 0.5, 0.1)), "0.05 exactly is far")
	assert.Equal(t, events.ZoneFar, ZoneOf(box(0, 0, 0.1, 0.1)))
}

func TestMovementOf(t *testing.T) {
	small := box(0, 0, 0.2, 0.2)
	big := box(0, 0, 0.3, 0.3)
	same := box(0, 0, 0.2, 0.204)

	assert.Equal(t, events.MovementStationary, MovementOf(big, []events.BBox{big}))
	assert.Equal(t, events.MovementStationary, MovementOf(big, nil))
	assert.Equal(t, events.MovementApproaching, MovementOf(big, []events.BBox{small, big}))
	assert.Equal(t, events.MovementReceding, MovementOf(small, []events.BBox{big, small}))
	assert.Equal(t, events.MovementStationary, MovementOf(same, []events.BBox{small, same}))
	// Only the second most recent entry matters.
	assert.Equal(t, events.MovementApproaching, MovementOf(big, []events.BBox{big, big, small, big}))
}

func TestUrgencyOf(t *testing.T) {
	tests := []struct {
		zone events.Zone
		mv   events.Movement
		want events.Urgency
	}{
		{events.ZoneNear, events.MovementApproaching, events.UrgencyCritical},
		{events.ZoneNear, events.MovementStationary, events.UrgencyHigh},
		{events.ZoneNear, events.MovementReceding, events.UrgencyHigh},
		{events.ZoneMid, events.MovementApproaching, events.UrgencyMedium},
		{events.ZoneMid, events.MovementStationary, events.UrgencyLow},
		{events.ZoneFar, events.MovementApproaching, events.UrgencyLow},
	}
	for _, tt := range tests {
		t.Run(string(tt.zone)+"/"+string(tt.mv), func(t *testing.T) {
			assert.Equal(t, tt.want, UrgencyOf(tt.zone, tt.mv))
		})
	}
}

func TestGuidanceText(t *testing.T) {
	tests := []struct {
		zone events.Zone
		mv   events.Movement
		want string
	}{
		{events.ZoneNear, events.MovementApproaching, "person very close, left"},
		{events.ZoneMid, events.MovementApproaching, "person approaching on left"},
		{events.ZoneFar, events.MovementApproaching, "person detected left"},
		{events.ZoneNear, events.MovementStationary, "person nearby on left"},
		{events.ZoneMid, events.MovementStationary, "person ahead on left"},
		{events.ZoneFar, events.MovementStationary, "person left"},
		{events.ZoneNear, events.MovementReceding, "person moving away"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, GuidanceText("person", events.DirectionLeft, tt.zone, tt.mv))
		})
	}
}

func TestAnalyzeCriticalScenario(t *testing.T) {
	prev := box(0.3, 0.3, 0.3, 0.3)
	cur := box(0.3, 0.3, 0.4, 0.4)
	g := Analyze(events.TrackUpdate{TrackID: 4, TimestampMs: 100, Label: "person", BBox: cur},
		[]events.BBox{prev, cur})

	assert.Equal(t, events.ZoneNear, g.Zone)
	assert.Equal(t, events.MovementApproaching, g.Movement)
	assert.Equal(t, events.UrgencyCritical, g.Urgency)
	assert.Contains(t, g.GuidanceText, "person")
	assert.Contains(t, g.GuidanceText, "close")
	assert.Equal(t, 4, g.TrackID)
	assert.Equal(t, int64(100), g.TimestampMs)
}

func TestModuleTracksHistoryPerTrack(t *testing.T) {
	env := stage.Env{
		Results: resultbus.New(resultbus.WithLogger(log.Discard())),
		Control: control.New(),
	}
	m := NewModule(log.Discard())
	guidance := resultbus.SubscribeType[events.NavigationGuidance](env.Results)
	tasks, err := m.Start(context.Background(), env)
	require.NoError(t, err)

	env.Results.Publish(events.TrackUpdate{TrackID: 1, Label: "chair", BBox: box(0.1, 0.5, 0.2, 0.2)})
	env.Results.Publish(events.TrackUpdate{TrackID: 2, Label: "person", BBox: box(0.7, 0.5, 0.1, 0.1)})
	env.Results.Publish(events.TrackUpdate{TrackID: 1, Label: "chair", BBox: box(0.1, 0.5, 0.3, 0.3)})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	g1, ok := guidance.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, events.MovementStationary, g1.Movement)

	g2, ok := guidance.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, 2, g2.TrackID)
	assert.Equal(t, events.MovementStationary, g2.Movement)

	g3, ok := guidance.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, g3.TrackID)
	assert.Equal(t, events.MovementApproaching, g3.Movement)
	assert.Equal(t, "chair approaching on left", g3.GuidanceText)

	m.Stop()
	<-tasks[0].Done()
	assert.Len(t, m.history, 2)
}

func TestModuleHistoryIsBounded(t *testing.T) {
	m := NewModule(log.Discard())
	for i := 0; i < 12; i++ {
		m.observe(events.TrackUpdate{TrackID: 1, BBox: box(0, 0, 0.1, 0.1)})
	}
	assert.Len(t, m.history[1], HistorySize)
}
