// Package tts turns guidance text into audio.
//
// Providers share one interface so the speaker can fall back from a hosted
// voice to a local one without knowing which is in use:
//
//	provider, _ := tts.NewOpenAI(
//	    tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    tts.WithVoice(tts.VoiceNova),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Stop! person ahead")
package tts

import (
	"context"
	"time"
)

// Provider synthesizes speech.
type Provider interface {
	// Synthesize returns the complete audio for text.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Stream returns audio as it becomes available.
	Stream(ctx context.Context, text string) (AudioStream, error)

	// Health checks connectivity and credentials.
	Health(ctx context.Context) error

	Close() error
}

// AudioStream is read until Read returns a nil chunk.
type AudioStream interface {
	Read() ([]byte, error)
	Close() error
	Format() AudioFormat
}

// AudioResult is a complete synthesis result.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration // estimated playback time, zero if unknown
	CharCount int
	LatencyMs int64
}

// AudioFormat describes encoded audio.
type AudioFormat struct {
	Encoding   Encoding `json:"encoding"`
	SampleRate int      `json:"sample_rate"`
	Channels   int      `json:"channels"`
	BitDepth   int      `json:"bit_depth,omitempty"`
}

// Encoding names an audio encoding.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingMP3   Encoding = "mp3_44100_128"
	EncodingOpus  Encoding = "opus"
	EncodingWAV   Encoding = "wav"
)

// SampleRateFromEncoding returns the sample rate implied by enc.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingMP3:
		return 44100
	case EncodingOpus:
		return 48000
	default:
		return 24000
	}
}

// responseFormat maps an Encoding onto the OpenAI response_format field.
func responseFormat(enc Encoding) string {
	switch enc {
	case EncodingPCM16, EncodingPCM24:
		return "pcm"
	case EncodingOpus:
		return "opus"
	case EncodingWAV:
		return "wav"
	default:
		return "mp3"
	}
}
