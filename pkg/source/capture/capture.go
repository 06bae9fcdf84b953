// Package capture reads frames from video files and cameras through OpenCV.
package capture

import (
	"fmt"
	"io"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-wayfinder/pkg/clock"
	"github.com/teslashibe/go-wayfinder/pkg/source"
)

// JPEGQuality is used when encoding captured frames.
const JPEGQuality = 85

// CameraConfig selects a camera and the resolution to request from it.
type CameraConfig struct {
	Device int
	Width  int
	Height int
	FPS    float64
}

// DefaultCameraConfig returns 640x480 at 15 fps from the first camera.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{Device: 0, Width: 640, Height: 480, FPS: 15}
}

// Capture is a source.Reader over a gocv VideoCapture.
type Capture struct {
	mu    sync.Mutex
	cap   *gocv.VideoCapture
	mat   gocv.Mat
	fps   float64
	total int
	live  bool
}

// OpenFile opens a video file.
func OpenFile(path string) (*Capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture: %s is not readable", path)
	}
	fps := vc.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = clock.DefaultFPS
	}
	return &Capture{
		cap:   vc,
		mat:   gocv.NewMat(),
		fps:   fps,
		total: int(vc.Get(gocv.VideoCaptureFrameCount)),
	}, nil
}

// OpenCamera opens a camera device.
func OpenCamera(cfg CameraConfig) (*Capture, error) {
	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("capture: open camera %d: %w", cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture: camera %d is not available", cfg.Device)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = clock.DefaultFPS
	}
	vc.Set(gocv.VideoCaptureFPS, fps)

	return &Capture{cap: vc, mat: gocv.NewMat(), fps: fps, live: true}, nil
}

// Next reads and JPEG-encodes the next frame. A file returns io.EOF at its
// end; a camera that misses a frame returns source.ErrFrameUnavailable.
func (c *Capture) Next() (source.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		if c.live {
			return source.Image{}, source.ErrFrameUnavailable
		}
		return source.Image{}, io.EOF
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.mat, []int{int(gocv.IMWriteJpegQuality), JPEGQuality})
	if err != nil {
		return source.Image{}, fmt.Errorf("capture: encode: %w", err)
	}
	defer buf.Close()
	jpeg := make([]byte, buf.Len())
	copy(jpeg, buf.GetBytes())

	return source.Image{JPEG: jpeg, Width: c.mat.Cols(), Height: c.mat.Rows()}, nil
}

// Seek repositions a video file.
func (c *Capture) Seek(frameID int) error {
	if c.live {
		return source.ErrNotSeekable
	}
	if frameID < 0 || (c.total > 0 && frameID >= c.total) {
		return fmt.Errorf("%w: %d", source.ErrSeekOutOfRange, frameID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cap.Set(gocv.VideoCapturePosFrames, float64(frameID))
	return nil
}

// FPS implements source.Reader.
func (c *Capture) FPS() float64 { return c.fps }

// Live implements source.Live.
func (c *Capture) Live() bool { return c.live }

// Close releases the capture.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mat.Close()
	return c.cap.Close()
}

var _ source.Reader = (*Capture)(nil)
