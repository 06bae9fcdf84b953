// Package protocol defines the WebSocket messages exchanged with phones and
// browser clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies a message.
type MessageType string

const (
	// Device → server
	TypeFrame MessageType = "frame"

	// Server → device
	TypeSpeak MessageType = "speak"

	// Server → UI
	TypeEvent MessageType = "event"

	// UI or device → server
	TypeControl MessageType = "control"

	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

var (
	ErrUnknownControl = errors.New("protocol: unknown control kind")
	ErrNoData         = errors.New("protocol: message has no data")
)

// Message is the envelope for every WebSocket message.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s data: %w", msgType, err)
		}
	}
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
	}, nil
}

// ParseData unmarshals the message data into v. Missing data is not an error.
func (m *Message) ParseData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON encoding.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage decodes a message.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, errors.New("protocol: message type missing")
	}
	return &msg, nil
}

// FrameData is a camera frame sent by a device.
type FrameData struct {
	FrameID int    `json:"frame_id"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg"
	Data    string `json:"data"`   // base64
}

// SpeakData is something for a device to say. Audio is empty when the
// device should use its own speech synthesizer.
type SpeakData struct {
	Text       string `json:"text"`
	Priority   int    `json:"priority"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Data       string `json:"data,omitempty"` // base64 audio
}

// EventData carries one pipeline event to a UI client.
type EventData struct {
	Kind  string          `json:"kind"`
	Event json.RawMessage `json:"event"`
}

// ControlData is a control request.
type ControlData struct {
	Kind  string `json:"kind"`
	Value any    `json:"value,omitempty"`
}

// PingData is a health check.
type PingData struct {
	ID string `json:"id"`
}

// PongData answers a ping.
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
