package source

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
)

// Ticker produces identical blank frames. It drives the pipeline when no
// camera or recording is available, typically with the stub detector.
type Ticker struct {
	fps   float64
	total int // 0 means endless
	pos   int
	frame Image
}

// NewTicker returns a ticker of total frames (0 for endless) at fps.
func NewTicker(fps float64, width, height, total int) (*Ticker, error) {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 128
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 50}); err != nil {
		return nil, fmt.Errorf("source: encode blank frame: %w", err)
	}
	return &Ticker{
		fps:   fps,
		total: total,
		frame: Image{JPEG: buf.Bytes(), Width: width, Height: height},
	}, nil
}

// Next implements Reader.
func (t *Ticker) Next() (Image, error) {
	if t.total > 0 && t.pos >= t.total {
		return Image{}, io.EOF
	}
	t.pos++
	return t.frame, nil
}

// Seek implements Reader.
func (t *Ticker) Seek(frameID int) error {
	if frameID < 0 || (t.total > 0 && frameID >= t.total) {
		return fmt.Errorf("%w: %d", ErrSeekOutOfRange, frameID)
	}
	t.pos = frameID
	return nil
}

// FPS implements Reader.
func (t *Ticker) FPS() float64 { return t.fps }

// Close implements Reader.
func (t *Ticker) Close() error { return nil }
