// Package detection turns frames into labeled boxes.
package detection

import (
	"context"

	"github.com/teslashibe/go-wayfinder/pkg/events"
)

// Detector is the interface for detection backends.
type Detector interface {
	// Detect returns the objects found in the frame, boxes normalized to [0,1].
	Detect(ctx context.Context, frame events.FramePacket) ([]events.Detection, error)

	// Close releases resources
	Close() error
}

// Func adapts a function to the Detector interface.
type Func func(ctx context.Context, frame events.FramePacket) ([]events.Detection, error)

// Detect implements Detector.
func (f Func) Detect(ctx context.Context, frame events.FramePacket) ([]events.Detection, error) {
	return f(ctx, frame)
}

// Close implements Detector.
func (f Func) Close() error { return nil }

// Filter returns the detections whose confidence is at least threshold.
// Boxes are clamped to the unit square.
func Filter(dets []events.Detection, threshold float64) []events.Detection {
	out := make([]events.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence < threshold {
			continue
		}
		d.BBox = d.BBox.Clamp()
		out = append(out, d)
	}
	return out
}
