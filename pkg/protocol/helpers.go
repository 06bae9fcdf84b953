package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/events"
)

// NewFrameMessage wraps a JPEG frame.
func NewFrameMessage(frameID, width, height int, jpeg []byte) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		FrameID: frameID,
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpeg),
	})
}

// GetFrameData extracts frame data.
func (m *Message) GetFrameData() (*FrameData, error) {
	if len(m.Data) == 0 {
		return nil, ErrNoData
	}
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Decode returns the frame bytes.
func (f *FrameData) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// NewSpeakMessage creates a speak message. audio may be nil.
func NewSpeakMessage(text string, priority int, audio []byte, format string, sampleRate int) (*Message, error) {
	data := SpeakData{Text: text, Priority: priority}
	if len(audio) > 0 {
		data.Format = format
		data.SampleRate = sampleRate
		data.Data = base64.StdEncoding.EncodeToString(audio)
	}
	return NewMessage(TypeSpeak, data)
}

// GetSpeakData extracts speak data.
func (m *Message) GetSpeakData() (*SpeakData, error) {
	var data SpeakData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// NewEventMessage wraps a pipeline event. The kind is events.TypeName(ev).
func NewEventMessage(ev any) (*Message, error) {
	kind := events.TypeName(ev)
	if kind == "" {
		return nil, fmt.Errorf("protocol: unsupported event %T", ev)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s: %w", kind, err)
	}
	return NewMessage(TypeEvent, EventData{Kind: kind, Event: raw})
}

// NewControlMessage creates a control message.
func NewControlMessage(kind events.ControlKind, value any) (*Message, error) {
	return NewMessage(TypeControl, ControlData{Kind: string(kind), Value: value})
}

// ParseControl converts a control message into a ControlEvent stamped with
// the message time.
func ParseControl(m *Message) (events.ControlEvent, error) {
	if m.Type != TypeControl {
		return events.ControlEvent{}, fmt.Errorf("protocol: %s is not a control message", m.Type)
	}
	var data ControlData
	if err := m.ParseData(&data); err != nil {
		return events.ControlEvent{}, fmt.Errorf("protocol: parse control: %w", err)
	}
	kind := events.ControlKind(data.Kind)
	if !kind.Known() {
		return events.ControlEvent{}, fmt.Errorf("%w: %q", ErrUnknownControl, data.Kind)
	}
	ts := m.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return events.ControlEvent{TimestampMs: ts, Kind: kind, Value: data.Value}, nil
}

// NewPingMessage creates a ping.
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id})
}

// NewPongMessage answers ping.
func NewPongMessage(ping *Message) (*Message, error) {
	var data PingData
	if err := ping.ParseData(&data); err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	pong := PongData{ID: data.ID, PingTS: ping.Timestamp, PongTS: now}
	if ping.Timestamp > 0 {
		pong.LatencyMs = now - ping.Timestamp
	}
	return NewMessage(TypePong, pong)
}
