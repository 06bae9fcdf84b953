package events

import (
	"encoding/json"
	"math"
	"strconv"
)

// ControlKind names a user or system control action.
type ControlKind string

const (
	ControlPlay          ControlKind = "play"
	ControlPause         ControlKind = "pause"
	ControlSpeed         ControlKind = "speed"
	ControlSeek          ControlKind = "seek"
	ControlSetThreshold  ControlKind = "set_threshold"
	ControlDescribeScene ControlKind = "describe_scene"
	ControlShutdown      ControlKind = "shutdown"
)

// Known reports whether k is one of the recognized control kinds.
func (k ControlKind) Known() bool {
	switch k {
	case ControlPlay, ControlPause, ControlSpeed, ControlSeek,
		ControlSetThreshold, ControlDescribeScene, ControlShutdown:
		return true
	}
	return false
}

// ControlEvent carries a control action and an optional value.
//
// speed carries a number, seek a frame index, and set_threshold an object
// {"name": "...", "value": x}.
type ControlEvent struct {
	TimestampMs int64       `json:"timestamp_ms"`
	Kind        ControlKind `json:"kind"`
	Value       any         `json:"value,omitempty"`
}

// Float returns the value as a number. Numeric strings are accepted.
func (e ControlEvent) Float() (float64, bool) {
	return toFloat(e.Value)
}

// Int returns the value as an integer. Fractional numbers are rejected.
func (e ControlEvent) Int() (int, bool) {
	f, ok := toFloat(e.Value)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// Threshold returns the name and value of a set_threshold payload.
func (e ControlEvent) Threshold() (string, float64, bool) {
	m, ok := e.Value.(map[string]any)
	if !ok {
		return "", 0, false
	}
	name, ok := m["name"].(string)
	if !ok || name == "" {
		return "", 0, false
	}
	v, ok := toFloat(m["value"])
	if !ok {
		return "", 0, false
	}
	return name, v, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
