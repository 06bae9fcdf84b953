package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/teslashibe/go-wayfinder/pkg/clock"
)

// Metadata describes a recorded frame directory.
type Metadata struct {
	FPS         float64 `json:"fps"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	TotalFrames int     `json:"total_frames"`
}

// Directory reads JPEG frames from a directory.
//
// With a metadata.json the frames are frame_0000.jpg, frame_0001.jpg and so
// on. Without one every *.jpg is played in name order at clock.DefaultFPS.
type Directory struct {
	dir   string
	meta  Metadata
	files []string // nil when frames follow the frame_NNNN.jpg pattern
	pos   int
}

// OpenDirectory opens dir for reading.
func OpenDirectory(dir string) (*Directory, error) {
	d := &Directory{dir: dir}

	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &d.meta); err != nil {
			return nil, fmt.Errorf("source: parse metadata: %w", err)
		}
		if d.meta.TotalFrames <= 0 {
			return nil, ErrNoFrames
		}
		if d.meta.FPS <= 0 {
			d.meta.FPS = clock.DefaultFPS
		}
		return d, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("source: read metadata: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoFrames
	}
	slices.Sort(files)

	w, h, err := dimensions(files[0])
	if err != nil {
		return nil, err
	}
	d.files = files
	d.meta = Metadata{FPS: clock.DefaultFPS, Width: w, Height: h, TotalFrames: len(files)}
	return d, nil
}

func dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("source: decode %s: %w", filepath.Base(path), err)
	}
	return cfg.Width, cfg.Height, nil
}

// Metadata returns the directory description.
func (d *Directory) Metadata() Metadata { return d.meta }

// Next reads the frame at the current position.
func (d *Directory) Next() (Image, error) {
	if d.pos >= d.meta.TotalFrames {
		return Image{}, io.EOF
	}
	path := d.path(d.pos)
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, &ReadError{FrameID: d.pos, Err: err}
	}
	d.pos++
	return Image{JPEG: data, Width: d.meta.Width, Height: d.meta.Height}, nil
}

func (d *Directory) path(i int) string {
	if d.files != nil {
		return d.files[i]
	}
	return filepath.Join(d.dir, fmt.Sprintf("frame_%04d.jpg", i))
}

// Seek moves to frameID.
func (d *Directory) Seek(frameID int) error {
	if frameID < 0 || frameID >= d.meta.TotalFrames {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrSeekOutOfRange, frameID, d.meta.TotalFrames)
	}
	d.pos = frameID
	return nil
}

// FPS returns the recorded frame rate.
func (d *Directory) FPS() float64 { return d.meta.FPS }

// Close implements Reader.
func (d *Directory) Close() error { return nil }
