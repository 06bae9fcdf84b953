package resultbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
)

func newBus(opts ...Option) *Bus {
	return New(append([]Option{WithLogger(log.Discard())}, opts...)...)
}

func metric(v float64) events.SystemMetric {
	return events.SystemMetric{Name: "m", Value: v}
}

func TestDropNewestKeepsExistingContent(t *testing.T) {
	b := newBus(WithQueueSize(3))
	sub := b.SubscribeAll()

	for i := 0; i < 5; i++ {
		b.Publish(metric(float64(i)))
	}
	b.Shutdown()

	var got []float64
	for ev := range sub.Events(context.Background()) {
		got = append(got, ev.(events.SystemMetric).Value)
	}
	assert.Equal(t, []float64{0, 1, 2}, got, "earliest events retained in order")

	st := b.Stats()
	assert.Equal(t, uint64(5), st.Published)
	assert.Equal(t, uint64(2), st.Dropped)
}

func TestDropIsPerSubscriber(t *testing.T) {
	b := newBus(WithQueueSize(1))
	slow := b.SubscribeAll()
	fast := b.SubscribeAll()

	b.Publish(metric(1))
	_, ok := fast.Next(context.Background())
	require.True(t, ok)
	b.Publish(metric(2))

	assert.Equal(t, 1, slow.Len())
	ev, ok := fast.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2.0, ev.(events.SystemMetric).Value)
	assert.Equal(t, uint64(1), b.Stats().Dropped)
}

func TestSubscribeTypeFilters(t *testing.T) {
	b := newBus()
	tracks := SubscribeType[events.TrackUpdate](b)
	all := b.SubscribeAll()
	assert.Equal(t, 2, b.Stats().Subscribers, "a typed view registers exactly one queue")

	b.Publish(events.DetectionResult{FrameID: 1})
	b.Publish(events.TrackUpdate{TrackID: 1})
	b.Publish(metric(1))
	b.Publish(events.TrackUpdate{TrackID: 2})
	b.Shutdown()

	var ids []int
	for u := range tracks.Events(context.Background()) {
		ids = append(ids, u.TrackID)
	}
	assert.Equal(t, []int{1, 2}, ids)

	n := 0
	for range all.Events(context.Background()) {
		n++
	}
	assert.Equal(t, 4, n)
}

func TestTypedSharesCapacityWithUnmatchedEvents(t *testing.T) {
	b := newBus(WithQueueSize(2))
	tracks := SubscribeType[events.TrackUpdate](b)

	b.Publish(metric(1))
	b.Publish(metric(2))
	b.Publish(events.TrackUpdate{TrackID: 7})

	assert.Equal(t, uint64(1), b.Stats().Dropped, "the filter runs after the queue")
	assert.Equal(t, 2, tracks.Len())
}

func TestShutdownUnblocks(t *testing.T) {
	b := newBus()
	typed := SubscribeType[events.FusionAnnouncement](b)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := typed.Next(context.Background())
		assert.False(t, ok)
	}()

	time.Sleep(10 * time.Millisecond)
	b.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("typed subscriber not released by shutdown")
	}

	b.Publish(metric(1))
	assert.Equal(t, uint64(0), b.Stats().Published)
}

func TestPublishNeverBlocks(t *testing.T) {
	b := newBus(WithQueueSize(1))
	_ = b.SubscribeAll()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b.Publish(metric(float64(i)))
			}
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}
	assert.Equal(t, uint64(800), b.Stats().Published)
	assert.Equal(t, uint64(799), b.Stats().Dropped)
}

func TestUnsubscribe(t *testing.T) {
	b := newBus()
	sub := b.SubscribeAll()
	sub.Close()
	b.Publish(metric(1))
	_, ok := sub.Next(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 0, b.Stats().Subscribers)
}
