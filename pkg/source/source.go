// Package source reads frames from disk, a camera or a synthetic ticker and
// plays them onto the frame bus at the configured speed.
package source

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameUnavailable is a transient read failure; the caller should retry.
	ErrFrameUnavailable = errors.New("source: frame unavailable")

	// ErrNotSeekable is returned by readers that cannot reposition.
	ErrNotSeekable = errors.New("source: not seekable")

	// ErrSeekOutOfRange is returned for a seek outside the known frames.
	ErrSeekOutOfRange = errors.New("source: seek out of range")

	// ErrNoFrames is returned when a directory holds no frames.
	ErrNoFrames = errors.New("source: no frames")
)

// Image is one encoded frame.
type Image struct {
	JPEG   []byte
	Width  int
	Height int
}

// Reader yields frames in order. Next returns io.EOF after the last frame.
type Reader interface {
	Next() (Image, error)
	Seek(frameID int) error
	FPS() float64
	Close() error
}

// Live is implemented by readers that produce frames in real time. The
// player ignores the speed setting for them.
type Live interface {
	Live() bool
}

// ReadError reports a failure to read a specific frame.
type ReadError struct {
	FrameID int
	Err     error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("source: frame %d: %v", e.FrameID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func isLive(r Reader) bool {
	l, ok := r.(Live)
	return ok && l.Live()
}
