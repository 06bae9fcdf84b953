package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/clock"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
)

// PausePoll is how often a paused player checks for resume.
const PausePoll = 100 * time.Millisecond

// Player is the stage that publishes a Reader's frames.
type Player struct {
	stage.Runner
	reader   Reader
	logger   *slog.Logger
	loop     bool
	finished chan struct{}
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithLoop rewinds to the first frame at the end instead of stopping.
// Frame ids keep increasing across loops.
func WithLoop(loop bool) PlayerOption {
	return func(p *Player) { p.loop = loop }
}

// NewPlayer creates a player for r.
func NewPlayer(r Reader, logger *slog.Logger, opts ...PlayerOption) *Player {
	p := &Player{
		reader:   r,
		logger:   log.Or(logger, "source"),
		finished: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements stage.Module.
func (p *Player) Name() string { return "source" }

// Finished is closed when playback ends.
func (p *Player) Finished() <-chan struct{} { return p.finished }

// Start implements stage.Module.
func (p *Player) Start(ctx context.Context, env stage.Env) ([]*stage.Task, error) {
	ctx = p.Begin(ctx)
	clk := env.Clock
	if clk == nil {
		clk = clock.New(p.reader.FPS(), time.Time{})
	}
	live := isLive(p.reader)

	return []*stage.Task{stage.Go(p.logger, "source.play", func() error {
		defer close(p.finished)
		return p.play(ctx, env, clk, live)
	})}, nil
}

func (p *Player) play(ctx context.Context, env stage.Env, clk *clock.Clock, live bool) error {
	frameID := 0
	base := 0 // frame id at the start of the current pass

	for p.Running() {
		settings := env.Control.Snapshot()
		if settings.Paused {
			if !sleep(ctx, PausePoll) {
				return nil
			}
			continue
		}

		if target, ok := env.Control.TakeSeek(); ok {
			if err := p.reader.Seek(target); err != nil {
				p.logger.Warn("seek failed", "frame", target, "error", err)
			} else {
				frameID, base = target, 0
				p.logger.Info("seeked", "frame", target)
			}
			continue
		}

		img, err := p.reader.Next()
		switch {
		case errors.Is(err, io.EOF):
			if !p.loop || frameID == base {
				p.logger.Info("playback finished", "frames", frameID)
				return nil
			}
			if err := p.reader.Seek(0); err != nil {
				return err
			}
			base = frameID
			p.logger.Debug("looping", "next_frame", frameID)
			continue
		case errors.Is(err, ErrFrameUnavailable):
			if !sleep(ctx, PausePoll) {
				return nil
			}
			continue
		case err != nil:
			var readErr *ReadError
			if errors.As(err, &readErr) {
				p.logger.Warn("stopping at unreadable frame", "frame", readErr.FrameID, "error", readErr.Err)
				return nil
			}
			return err
		}

		env.Frames.Publish(events.FramePacket{
			FrameID:     frameID,
			TimestampMs: clk.FrameToTimestamp(frameID),
			Width:       img.Width,
			Height:      img.Height,
			JPEG:        img.JPEG,
		})
		frameID++

		delay := clk.FrameDelay(settings.Speed)
		if live {
			delay = clk.FrameDelay(1)
		}
		if !sleep(ctx, delay) {
			return nil
		}
	}
	return nil
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
