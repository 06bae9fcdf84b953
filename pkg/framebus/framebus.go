// Package framebus fans frames out to subscribers with a latest-frame-wins policy.
//
// Each subscriber owns a bounded queue. When a queue is full the oldest frame
// is evicted to make room, so a slow consumer only ever sees recent frames and
// the publisher never blocks.
package framebus

import (
	"context"
	"iter"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
)

// DefaultQueueSize is the per-subscriber queue capacity.
const DefaultQueueSize = 2

// Stats are running counters for observability.
type Stats struct {
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize sets the per-subscriber capacity. Values below 1 are ignored.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n >= 1 {
			b.queueSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// Bus distributes FramePackets to every current subscriber.
type Bus struct {
	queueSize int
	logger    *slog.Logger

	// mu guards the registry and every queue mutation.
	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	published uint64
	dropped   uint64
	closed    bool
}

// New creates a frame bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		queueSize: DefaultQueueSize,
		subs:      make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = log.Or(b.logger, "framebus")
	return b
}

// Subscribe registers a new subscriber. It receives frames published from now on.
// After Shutdown the returned subscription is already ended.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{bus: b, ch: make(chan events.FramePacket, b.queueSize)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish offers the frame to every subscriber, evicting the oldest queued
// frame of any subscriber whose queue is full.
func (b *Bus) Publish(pkt events.FramePacket) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.published++
	for s := range b.subs {
		if len(s.ch) == cap(s.ch) {
			// The consumer may have taken one since the check.
			select {
			case <-s.ch:
				b.dropped++
			default:
			}
		}
		// Only publishers send and they hold mu, so there is room now.
		s.ch <- pkt
	}
}

// Stats returns a copy of the counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Published: b.published, Dropped: b.dropped, Subscribers: len(b.subs)}
}

// Shutdown ends every subscription. Frames already queued are still delivered
// before the end of stream. Safe to call more than once.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
	}
	clear(b.subs)
	b.logger.Info("frame bus shut down", "published", b.published, "dropped", b.dropped)
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

// Subscription is one subscriber's queue.
type Subscription struct {
	bus *Bus
	ch  chan events.FramePacket
}

// C returns the receive side of the queue. It is closed at end of stream.
func (s *Subscription) C() <-chan events.FramePacket {
	return s.ch
}

// Next blocks for the next frame. It returns false at end of stream or when
// ctx is done.
func (s *Subscription) Next(ctx context.Context) (events.FramePacket, bool) {
	select {
	case pkt, ok := <-s.ch:
		return pkt, ok
	case <-ctx.Done():
		return events.FramePacket{}, false
	}
}

// Frames iterates frames until end of stream or ctx is done.
func (s *Subscription) Frames(ctx context.Context) iter.Seq[events.FramePacket] {
	return func(yield func(events.FramePacket) bool) {
		for {
			pkt, ok := s.Next(ctx)
			if !ok || !yield(pkt) {
				return
			}
		}
	}
}

// Len returns the number of queued frames.
func (s *Subscription) Len() int {
	return len(s.ch)
}

// Close unsubscribes. The channel is closed; pending frames are discarded by
// the caller simply not reading them.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}
