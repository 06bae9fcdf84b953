// Package resultbus fans typed pipeline events out to subscribers.
//
// Each subscriber owns a bounded queue. When a queue is full the new event is
// dropped for that subscriber only, so retained events keep their order and
// the publisher never blocks.
package resultbus

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
)

// DefaultQueueSize is the per-subscriber queue capacity.
const DefaultQueueSize = 100

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

// Bus distributes events of any type.
type Bus struct {
	queueSize int
	logger    *slog.Logger

	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	published uint64
	dropped   uint64
	closed    bool
}

// New creates a result bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		queueSize: DefaultQueueSize,
		subs:      make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = log.Or(b.logger, "resultbus")
	return b
}

// Publish offers ev to every subscriber without blocking.
func (b *Bus) Publish(ev any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.published++
	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			b.dropped++
			s.dropped++
			b.logger.Warn("subscriber queue full, dropping event",
				"event", eventName(ev), "subscriber", s.name, "dropped", s.dropped)
		}
	}
}

// SubscribeAll registers a subscriber for every event type.
func (b *Bus) SubscribeAll() *Subscription {
	return b.subscribe("all")
}

func (b *Bus) subscribe(name string) *Subscription {
	s := &Subscription{bus: b, name: name, ch: make(chan any, b.queueSize)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Stats returns a copy of the counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Published: b.published, Dropped: b.dropped, Subscribers: len(b.subs)}
}

// Shutdown ends every subscription after its queued events. Safe to call more than once.
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
	b.logger.Info("result bus shut down", "published", b.published, "dropped", b.dropped)
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

func eventName(ev any) string {
	if n := events.TypeName(ev); n != "" {
		return n
	}
	return fmt.Sprintf("%T", ev)
}

// Subscription is one subscriber's queue.
type Subscription struct {
	bus     *Bus
	name    string
	ch      chan any
	dropped uint64 // guarded by bus.mu
}

// C returns the receive side of the queue. It is closed at end of stream.
func (s *Subscription) C() <-chan any {
	return s.ch
}

// Next blocks for the next event. It returns false at end of stream or when ctx is done.
func (s *Subscription) Next(ctx context.Context) (any, bool) {
	select {
	case ev, ok := <-s.ch:
		return ev, ok
	case <-ctx.Done():
		return nil, false
	}
}

// Events iterates events until end of stream or ctx is done.
func (s *Subscription) Events(ctx context.Context) iter.Seq[any] {
	return func(yield func(any) bool) {
		for {
			ev, ok := s.Next(ctx)
			if !ok || !yield(ev) {
				return
			}
		}
	}
}

// Len returns the number of queued events.
func (s *Subscription) Len() int {
	return len(s.ch)
}

// Close unsubscribes.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Typed is a view over one subscription that yields only events of type T.
// Filtering happens on the consumer side; there is no second queue.
type Typed[T any] struct {
	*Subscription
}

// SubscribeType registers a subscriber that only sees events of type T.
func SubscribeType[T any](b *Bus) *Typed[T] {
	var zero T
	return &Typed[T]{Subscription: b.subscribe(fmt.Sprintf("%T", zero))}
}

// Next blocks for the next event of type T, discarding others.
func (t *Typed[T]) Next(ctx context.Context) (T, bool) {
	for {
		ev, ok := t.Subscription.Next(ctx)
		if !ok {
			var zero T
			return zero, false
		}
		if v, ok := ev.(T); ok {
			return v, true
		}
	}
}

// Events iterates events of type T until end of stream or ctx is done.
func (t *Typed[T]) Events(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := t.Next(ctx)
			if !ok || !yield(v) {
				return
			}
		}
	}
}
