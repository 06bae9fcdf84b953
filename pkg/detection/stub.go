package detection

import (
	"context"
	"math"

	"github.com/teslashibe/go-wayfinder/pkg/events"
)

// Stub plays a fixed scene keyed by frame id. It ignores pixels, which makes
// runs reproducible without a model.
type Stub struct{}

var _ Detector = Stub{}

// Detect implements Detector.
func (Stub) Detect(_ context.Context, frame events.FramePacket) ([]events.Detection, error) {
	return Scripted(frame.FrameID), nil
}

// Close implements Detector.
func (Stub) Close() error { return nil }

// Scripted returns the stub scene for frame id.
func Scripted(id int) []events.Detection {
	var dets []events.Detection

	// Person crossing left to right, seen every third frame.
	if id%3 == 0 {
		progress := math.Mod(float64(id)*0.005, 1.0)
		dets = append(dets, events.Detection{
			Label:      "person",
			Confidence: 0.85,
			BBox:       events.BBox{X: 0.05 + progress*0.7, Y: 0.35, W: 0.10, H: 0.25},
		})
	}

	dets = append(dets, events.Detection{
		Label:      "door",
		Confidence: 0.92,
		BBox:       events.BBox{X: 0.75, Y: 0.25, W: 0.12, H: 0.40},
	})

	// Obstacle growing from 0.05 to 0.20.
	if id >= 50 && id <= 200 {
		size := 0.05 + float64(id-50)/150.0*0.15
		dets = append(dets, events.Detection{
			Label:      "obstacle",
			Confidence: 0.78,
			BBox:       events.BBox{X: 0.40, Y: 0.50, W: size, H: size},
		})
	}

	// Second person entering from the right.
	if id >= 150 {
		if x := 0.85 - float64(id-150)*0.003; x > 0.1 {
			dets = append(dets, events.Detection{
				Label:      "person",
				Confidence: 0.80,
				BBox:       events.BBox{X: x, Y: 0.40, W: 0.08, H: 0.20},
			})
		}
	}

	if id >= 200 && id <= 250 {
		dets = append(dets, events.Detection{
			Label:      "hazard",
			Confidence: 0.75,
			BBox:       events.BBox{X: 0.20, Y: 0.60, W: 0.12, H: 0.08},
		})
	}

	return dets
}
