package control

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/pkg/events"
)

func TestDefaults(t *testing.T) {
	s := New().Snapshot()
	assert.False(t, s.Paused)
	assert.Equal(t, 1.0, s.Speed)
	assert.Nil(t, s.PendingSeek)
	assert.Equal(t, 0.5, s.DetectionConfThreshold)
	assert.Equal(t, 0.3, s.TrackerIoUThreshold)
	assert.Equal(t, 3.0, s.FusionCooldownSeconds)
	assert.Equal(t, int64(3000), s.CooldownMs())
}

func TestSnapshotIsACopy(t *testing.T) {
	st := New()
	st.RequestSeek(10)
	snap := st.Snapshot()
	*snap.PendingSeek = 99

	v, ok := st.TakeSeek()
	require.True(t, ok)
	assert.Equal(t, 10, v)

	_, ok = st.TakeSeek()
	assert.False(t, ok, "seek is consumed once")
}

func TestUpdateIsAtomic(t *testing.T) {
	st := New()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Writers keep both thresholds equal; readers must never see them differ.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			v := float64(i%100) / 100
			st.Update(func(s *Settings) {
				s.DetectionConfThreshold = v
				s.TrackerIoUThreshold = v
			})
		}
		close(stop)
	}()

	torn := false
	for done := false; !done; {
		select {
		case <-stop:
			done = true
		default:
			s := st.Snapshot()
			if s.DetectionConfThreshold != s.TrackerIoUThreshold {
				torn = true
			}
		}
	}
	wg.Wait()
	assert.False(t, torn)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		ev      events.ControlEvent
		applied bool
		wantErr error
		check   func(t *testing.T, s Settings)
	}{
		{
			name:    "pause",
			ev:      events.ControlEvent{Kind: events.ControlPause},
			applied: true,
			check:   func(t *testing.T, s Settings) { assert.True(t, s.Paused) },
		},
		{
			name:    "speed",
			ev:      events.ControlEvent{Kind: events.ControlSpeed, Value: 2.0},
			applied: true,
			check:   func(t *testing.T, s Settings) { assert.Equal(t, 2.0, s.Speed) },
		},
		{
			name:    "zero speed rejected",
			ev:      events.ControlEvent{Kind: events.ControlSpeed, Value: 0.0},
			wantErr: ErrInvalidValue,
			check:   func(t *testing.T, s Settings) { assert.Equal(t, 1.0, s.Speed) },
		},
		{
			name:    "seek",
			ev:      events.ControlEvent{Kind: events.ControlSeek, Value: 42.0},
			applied: true,
			check: func(t *testing.T, s Settings) {
				require.NotNil(t, s.PendingSeek)
				assert.Equal(t, 42, *s.PendingSeek)
			},
		},
		{
			name:    "negative seek rejected",
			ev:      events.ControlEvent{Kind: events.ControlSeek, Value: -1.0},
			wantErr: ErrInvalidValue,
		},
		{
			name: "iou threshold",
			ev: events.ControlEvent{Kind: events.ControlSetThreshold,
				Value: map[string]any{"name": "tracker_iou", "value": 0.45}},
			applied: true,
			check:   func(t *testing.T, s Settings) { assert.Equal(t, 0.45, s.TrackerIoUThreshold) },
		},
		{
			name: "cooldown",
			ev: events.ControlEvent{Kind: events.ControlSetThreshold,
				Value: map[string]any{"name": "fusion_cooldown", "value": 5.0}},
			applied: true,
			check:   func(t *testing.T, s Settings) { assert.Equal(t, 5.0, s.FusionCooldownSeconds) },
		},
		{
			name: "conf out of range",
			ev: events.ControlEvent{Kind: events.ControlSetThreshold,
				Value: map[string]any{"name": "detection_conf", "value": 1.5}},
			applied: true,
			wantErr: ErrInvalidValue,
		},
		{
			name: "unknown threshold",
			ev: events.ControlEvent{Kind: events.ControlSetThreshold,
				Value: map[string]any{"name": "volume", "value": 0.5}},
			applied: true,
			wantErr: ErrUnknownThreshold,
		},
		{
			name: "describe scene is not a state change",
			ev:   events.ControlEvent{Kind: events.ControlDescribeScene},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := New()
			applied, err := Apply(st, tt.ev)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.applied, applied)
			}
			if tt.check != nil {
				tt.check(t, st.Snapshot())
			}
		})
	}
}
