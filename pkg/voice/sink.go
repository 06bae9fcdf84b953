// Package voice speaks announcements and scene descriptions.
//
// A Speaker stage takes what fusion and scene publish, keeps at most one
// utterance waiting, synthesizes it with a tts.Provider and hands the result
// to every configured Sink (a log, a connected phone, the web UI).
package voice

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/tts"
)

// Source names where an utterance came from.
type Source string

const (
	SourceFusion Source = "fusion"
	SourceScene  Source = "scene"
)

// Utterance is one thing to say. Priority 1 is the most urgent.
type Utterance struct {
	TimestampMs int64
	Text        string
	Priority    int
	Source      Source
	Audio       *tts.AudioResult // nil when speaking text only
}

// Sink delivers utterances to the user.
type Sink interface {
	Speak(ctx context.Context, u Utterance) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, u Utterance) error

// Speak implements Sink.
func (f SinkFunc) Speak(ctx context.Context, u Utterance) error { return f(ctx, u) }

// LogSink logs what would be spoken.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink that writes to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: log.Or(logger, "voice.log")}
}

// Speak implements Sink.
func (s *LogSink) Speak(_ context.Context, u Utterance) error {
	args := []any{"text", u.Text, "priority", u.Priority, "source", u.Source}
	if u.Audio != nil {
		args = append(args, "audio_bytes", len(u.Audio.Audio))
	}
	s.logger.Info("speak", args...)
	return nil
}
