package handler

import (
	"context"
	"sync/atomic"
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

func TestHandlerAppliesEvents(t *testing.T) {
	env := stage.Env{
		Results: resultbus.New(resultbus.WithLogger(log.Discard())),
		Control: control.New(),
	}
	var shutdowns atomic.Int32
	h := New(log.Discard(), func() { shutdowns.Add(1) })

	tasks, err := h.Start(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	env.Results.Publish(events.ControlEvent{Kind: events.ControlPause})
	env.Results.Publish(events.SystemMetric{Name: "noise"})
	env.Results.Publish(events.ControlEvent{Kind: events.ControlSpeed, Value: 2.0})
	env.Results.Publish(events.ControlEvent{Kind: events.ControlSpeed, Value: -1.0})
	env.Results.Publish(events.ControlEvent{Kind: events.ControlShutdown})

	require.Eventually(t, func() bool { return shutdowns.Load() == 1 }, time.Second, 5*time.Millisecond)

	s := env.Control.Snapshot()
	assert.True(t, s.Paused)
	assert.Equal(t, 2.0, s.Speed, "invalid speed is rejected, the earlier one stays")

	env.Results.Shutdown()
	select {
	case <-tasks[0].Done():
	case <-time.After(time.Second):
		t.Fatal("handler did not exit on bus shutdown")
	}
	assert.NoError(t, tasks[0].Err())
}
