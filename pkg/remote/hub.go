// Package remote accepts phones over WebSocket. A phone streams camera
// frames in and receives speech to play back.
package remote

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/protocol"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
	"github.com/teslashibe/go-wayfinder/pkg/voice"
)

// AutoID asks the hub to assign a device id.
const AutoID = "-"

const maxMessageSize = 4 << 20

// ErrDeviceNotConnected is returned when sending to an unknown device.
var ErrDeviceNotConnected = errors.New("remote: device not connected")

// Device is a connected phone.
type Device struct {
	ID        string
	Connected time.Time

	conn     *websocket.Conn
	mu       sync.Mutex // guards writes and lastSeen
	lastSeen time.Time
}

// Send writes msg to the device.
func (d *Device) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.WriteMessage(websocket.TextMessage, data)
}

func (d *Device) touch() {
	d.mu.Lock()
	d.lastSeen = time.Now()
	d.mu.Unlock()
}

// LastSeen returns when the device last sent anything.
func (d *Device) LastSeen() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

// Hub is the stage that feeds device frames into the pipeline and voices
// utterances on every device.
//
// Frames are renumbered with a hub-wide counter so ids stay strictly
// increasing when a phone reconnects and restarts its own count.
type Hub struct {
	stage.Runner
	logger *slog.Logger

	mu      sync.RWMutex
	devices map[string]*Device
	env     *stage.Env

	nextFrame atomic.Int64

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	framesDropped    atomic.Uint64
}

// NewHub creates a device hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  log.Or(logger, "remote"),
		devices: make(map[string]*Device),
	}
}

// Name implements stage.Module.
func (h *Hub) Name() string { return "remote" }

// Start implements stage.Module. Frames arriving before Start are dropped.
func (h *Hub) Start(ctx context.Context, env stage.Env) ([]*stage.Task, error) {
	ctx = h.Begin(ctx)
	h.mu.Lock()
	h.env = &env
	h.mu.Unlock()

	return []*stage.Task{stage.Go(h.logger, "remote.watch", func() error {
		<-ctx.Done()
		h.mu.Lock()
		h.env = nil
		for _, d := range h.devices {
			d.conn.Close()
		}
		h.mu.Unlock()
		return nil
	})}, nil
}

func (h *Hub) environment() *stage.Env {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.env
}

// RegisterRoutes mounts the device endpoint.
func (h *Hub) RegisterRoutes(r fiber.Router) {
	r.Use("/ws/device", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get("/ws/device/:id?", websocket.New(h.handleDevice))
}

func (h *Hub) handleDevice(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" || id == AutoID {
		id = uuid.NewString()
	}
	now := time.Now()
	d := &Device{ID: id, Connected: now, conn: c, lastSeen: now}

	h.mu.Lock()
	if old, ok := h.devices[id]; ok {
		old.conn.Close()
	}
	h.devices[id] = d
	count := len(h.devices)
	h.mu.Unlock()
	h.logger.Info("device connected", "device", id, "total", count)

	defer func() {
		h.mu.Lock()
		if h.devices[id] == d {
			delete(h.devices, id)
		}
		count := len(h.devices)
		h.mu.Unlock()
		h.logger.Info("device disconnected", "device", id, "remaining", count)
	}()

	c.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("device read ended", "device", id, "error", err)
			return
		}
		d.touch()
		h.messagesReceived.Add(1)
		h.handleMessage(d, data)
	}
}

func (h *Hub) handleMessage(d *Device, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Debug("parse error", "device", d.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		h.framesReceived.Add(1)
		if err := h.publishFrame(msg); err != nil {
			h.framesDropped.Add(1)
			h.logger.Debug("frame dropped", "device", d.ID, "reason", err)
		}

	case protocol.TypeControl:
		ev, err := protocol.ParseControl(msg)
		if err != nil {
			h.logger.Warn("rejected control", "device", d.ID, "error", err)
			return
		}
		if env := h.environment(); env != nil {
			env.Results.Publish(ev)
		}

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage(msg)
		if err != nil {
			return
		}
		if err := d.Send(pong); err == nil {
			h.messagesSent.Add(1)
		}
	}
}

var (
	errNotStarted = errors.New("pipeline not started")
	errPaused     = errors.New("paused")
)

func (h *Hub) publishFrame(msg *protocol.Message) error {
	env := h.environment()
	if env == nil {
		return errNotStarted
	}
	if env.Control != nil && env.Control.Snapshot().Paused {
		return errPaused
	}
	fd, err := msg.GetFrameData()
	if err != nil {
		return err
	}
	jpeg, err := fd.Decode()
	if err != nil {
		return err
	}
	if len(jpeg) == 0 {
		return protocol.ErrNoData
	}

	ts := msg.Timestamp
	if ts == 0 {
		if env.Clock != nil {
			ts = env.Clock.NowMs()
		} else {
			ts = time.Now().UnixMilli()
		}
	}
	env.Frames.Publish(events.FramePacket{
		FrameID:     int(h.nextFrame.Add(1) - 1),
		TimestampMs: ts,
		Width:       fd.Width,
		Height:      fd.Height,
		JPEG:        jpeg,
	})
	return nil
}

// Speak implements voice.Sink by sending u to every connected device.
func (h *Hub) Speak(_ context.Context, u voice.Utterance) error {
	var audio []byte
	var format string
	var rate int
	if u.Audio != nil {
		audio = u.Audio.Audio
		format = string(u.Audio.Format.Encoding)
		rate = u.Audio.Format.SampleRate
	}
	msg, err := protocol.NewSpeakMessage(u.Text, u.Priority, audio, format, rate)
	if err != nil {
		return err
	}
	var errs []error
	for _, d := range h.Devices() {
		if err := d.Send(msg); err != nil {
			errs = append(errs, err)
			continue
		}
		h.messagesSent.Add(1)
	}
	return errors.Join(errs...)
}

// SendTo sends msg to one device.
func (h *Hub) SendTo(id string, msg *protocol.Message) error {
	h.mu.RLock()
	d, ok := h.devices[id]
	h.mu.RUnlock()
	if !ok {
		return ErrDeviceNotConnected
	}
	if err := d.Send(msg); err != nil {
		return err
	}
	h.messagesSent.Add(1)
	return nil
}

// Device returns a connected device or nil.
func (h *Hub) Device(id string) *Device {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.devices[id]
}

// Devices returns the connected devices.
func (h *Hub) Devices() []*Device {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Device, 0, len(h.devices))
	for _, d := range h.devices {
		out = append(out, d)
	}
	return out
}

// DeviceCount returns the number of connected devices.
func (h *Hub) DeviceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

var _ voice.Sink = (*Hub)(nil)
