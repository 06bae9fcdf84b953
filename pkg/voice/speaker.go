package voice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
	"github.com/teslashibe/go-wayfinder/pkg/tts"
)

// ScenePriority is the priority given to scene descriptions.
const ScenePriority = 5

// Speaker is the stage that voices announcements.
//
// At most one utterance waits while another is being spoken. A newer one
// replaces it when it is at least as urgent and is dropped otherwise.
type Speaker struct {
	stage.Runner
	provider tts.Provider
	sinks    []Sink
	logger   *slog.Logger
	stats    counters

	mu      sync.Mutex
	pending *Utterance
	wake    chan struct{}
}

// NewSpeaker creates the speaker. A nil provider speaks text only.
func NewSpeaker(provider tts.Provider, logger *slog.Logger, sinks ...Sink) *Speaker {
	return &Speaker{
		provider: provider,
		sinks:    sinks,
		logger:   log.Or(logger, "voice"),
		wake:     make(chan struct{}, 1),
	}
}

// AddSink registers another sink. Call before Start.
func (s *Speaker) AddSink(sink Sink) {
	s.sinks = append(s.sinks, sink)
}

// Stats returns a copy of the counters.
func (s *Speaker) Stats() Stats { return s.stats.snapshot() }

// Name implements stage.Module.
func (s *Speaker) Name() string { return "voice" }

// Start implements stage.Module.
func (s *Speaker) Start(ctx context.Context, env stage.Env) ([]*stage.Task, error) {
	ctx = s.Begin(ctx)
	sub := env.Results.SubscribeAll()

	listen := stage.Go(s.logger, "voice.listen", func() error {
		defer sub.Close()
		for s.Running() {
			ev, ok := sub.Next(ctx)
			if !ok {
				return nil
			}
			u, ok := utteranceOf(ev)
			if !ok {
				continue
			}
			if env.Control.Snapshot().Paused {
				continue
			}
			s.offer(env, u)
		}
		return nil
	})

	speak := stage.Go(s.logger, "voice.speak", func() error {
		for s.Running() {
			select {
			case <-ctx.Done():
				return nil
			case <-s.wake:
			}
			if u, ok := s.take(); ok {
				s.say(ctx, env, u)
			}
		}
		return nil
	})

	return []*stage.Task{listen, speak}, nil
}

func utteranceOf(ev any) (Utterance, bool) {
	switch ev := ev.(type) {
	case events.FusionAnnouncement:
		return Utterance{
			TimestampMs: ev.TimestampMs,
			Text:        ev.Text,
			Priority:    ev.Priority,
			Source:      SourceFusion,
		}, true
	case events.SceneDescription:
		return Utterance{
			TimestampMs: ev.TimestampMs,
			Text:        ev.Description,
			Priority:    ScenePriority,
			Source:      SourceScene,
		}, true
	}
	return Utterance{}, false
}

// offer places u in the pending slot.
func (s *Speaker) offer(env stage.Env, u Utterance) {
	s.mu.Lock()
	dropped := false
	switch {
	case s.pending == nil:
		s.pending = &u
	case u.Priority <= s.pending.Priority:
		s.pending = &u
		dropped = true
	default:
		dropped = true
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	if dropped {
		n := s.stats.dropped.Add(1)
		s.logger.Debug("utterance dropped", "dropped", n)
		env.Results.Publish(events.SystemMetric{
			TimestampMs: nowMs(env, u.TimestampMs),
			Name:        "voice.dropped",
			Value:       float64(n),
		})
	}
}

func (s *Speaker) take() (Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Utterance{}, false
	}
	u := *s.pending
	s.pending = nil
	return u, true
}

func (s *Speaker) say(ctx context.Context, env stage.Env, u Utterance) {
	if s.provider != nil {
		start := time.Now()
		audio, err := s.provider.Synthesize(ctx, u.Text)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.stats.synthFailed.Add(1)
			s.logger.Warn("synthesis failed, speaking text only", "error", err)
		} else {
			u.Audio = audio
			latency := time.Since(start).Milliseconds()
			s.stats.lastLatency.Store(latency)
			env.Results.Publish(events.SystemMetric{
				TimestampMs: nowMs(env, u.TimestampMs),
				Name:        "voice.synth_latency_ms",
				Value:       float64(latency),
			})
		}
	}

	for _, sink := range s.sinks {
		if err := sink.Speak(ctx, u); err != nil {
			s.stats.sinkFailed.Add(1)
			s.logger.Warn("sink failed", "error", err)
		}
	}
	s.stats.spoken.Add(1)
}

func nowMs(env stage.Env, fallback int64) int64 {
	if env.Clock != nil {
		return env.Clock.NowMs()
	}
	return fallback
}
