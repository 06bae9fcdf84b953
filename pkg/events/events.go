// Package events defines the values exchanged between pipeline stages.
//
// Every type here is a plain value. Stages publish copies and never mutate
// an event after publishing it.
package events

import (
	"encoding/json"
	"fmt"
)

// BBox is an axis-aligned box in normalized image coordinates.
// It encodes to JSON as [x, y, w, h].
type BBox struct {
	X, Y, W, H float64
}

// Center returns the box center.
func (b BBox) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns w*h.
func (b BBox) Area() float64 {
	return b.W * b.H
}

// Valid reports whether the box lies within [0,1] with non-negative size.
func (b BBox) Valid() bool {
	for _, v := range [4]float64{b.X, b.Y, b.W, b.H} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// Clamp returns the box with every coordinate clamped to [0,1].
func (b BBox) Clamp() BBox {
	return BBox{X: clamp01(b.X), Y: clamp01(b.Y), W: clamp01(b.W), H: clamp01(b.H)}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X, b.Y, b.W, b.H})
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	var v [4]float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("events: bbox must be [x,y,w,h]: %w", err)
	}
	*b = BBox{X: v[0], Y: v[1], W: v[2], H: v[3]}
	return nil
}

// FramePacket is one encoded frame. It only travels on the frame bus.
type FramePacket struct {
	FrameID     int    `json:"frame_id"`
	TimestampMs int64  `json:"timestamp_ms"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	JPEG        []byte `json:"-"`
}

// Detection is a labeled box produced by a detector.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// DetectionResult holds the detections for one frame, in detector emission order.
type DetectionResult struct {
	FrameID     int         `json:"frame_id"`
	TimestampMs int64       `json:"timestamp_ms"`
	Detections  []Detection `json:"detections"`
}

// Vec2 is a displacement of a box center between two frames.
type Vec2 struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// TrackUpdate is emitted once per track per processed detection frame.
type TrackUpdate struct {
	TrackID     int     `json:"track_id"`
	FrameID     int     `json:"frame_id"`
	TimestampMs int64   `json:"timestamp_ms"`
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	BBox        BBox    `json:"bbox"`
	Velocity    *Vec2   `json:"velocity,omitempty"`
	IsStable    bool    `json:"is_stable"`
}

// TrackLost is emitted when a track is evicted.
type TrackLost struct {
	TrackID     int   `json:"track_id"`
	FrameID     int   `json:"frame_id"`
	TimestampMs int64 `json:"timestamp_ms"`
}

// Direction is the horizontal position of an object relative to the viewer.
type Direction string

const (
	DirectionLeft   Direction = "left"
	DirectionCenter Direction = "center"
	DirectionRight  Direction = "right"
)

// Zone is a coarse distance band derived from box area.
type Zone string

const (
	ZoneNear Zone = "near"
	ZoneMid  Zone = "mid"
	ZoneFar  Zone = "far"
)

// Movement describes whether an object is getting closer.
type Movement string

const (
	MovementApproaching Movement = "approaching"
	MovementReceding    Movement = "receding"
	MovementStationary  Movement = "stationary"
)

// Urgency drives announcement priority and cooldown bypass.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// NavigationGuidance is the spatial reading of one track update.
type NavigationGuidance struct {
	TimestampMs  int64     `json:"timestamp_ms"`
	TrackID      int       `json:"track_id"`
	Label        string    `json:"label"`
	Direction    Direction `json:"direction"`
	Zone         Zone      `json:"zone"`
	Movement     Movement  `json:"movement"`
	Urgency      Urgency   `json:"urgency"`
	GuidanceText string    `json:"guidance_text"`
}

// Kind classifies an announcement.
type Kind string

const (
	KindObject     Kind = "object"
	KindHazard     Kind = "hazard"
	KindNavigation Kind = "navigation"
	KindStatus     Kind = "status"
)

// FusionAnnouncement is something worth saying to the user.
// Priority 1 is the most urgent.
type FusionAnnouncement struct {
	TimestampMs    int64  `json:"timestamp_ms"`
	Text           string `json:"text"`
	Kind           Kind   `json:"kind"`
	Priority       int    `json:"priority"`
	SourceTrackIDs []int  `json:"source_track_ids,omitempty"`
}

// SceneDescription summarizes everything currently in view.
type SceneDescription struct {
	TimestampMs int64  `json:"timestamp_ms"`
	Description string `json:"description"`
	ObjectCount int    `json:"object_count"`
	TrackIDs    []int  `json:"track_ids,omitempty"`
}

// SystemMetric is the only telemetry format stages emit.
type SystemMetric struct {
	TimestampMs int64             `json:"timestamp_ms"`
	Name        string            `json:"name"`
	Value       float64           `json:"value"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// TypeName returns the short wire name of an event, or "" for unknown values.
func TypeName(ev any) string {
	switch ev.(type) {
	case DetectionResult:
		return "detection"
	case TrackUpdate:
		return "track"
	case TrackLost:
		return "track_lost"
	case NavigationGuidance:
		return "guidance"
	case FusionAnnouncement:
		return "announcement"
	case SceneDescription:
		return "scene"
	case ControlEvent:
		return "control"
	case SystemMetric:
		return "metric"
	default:
		return ""
	}
}
