package web

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-wayfinder/pkg/control"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/framebus"
	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/protocol"
	"github.com/teslashibe/go-wayfinder/pkg/resultbus"
)

const (
	defaultAnnouncementLimit = 20
	maxAnnouncementLimit     = 500
)

// Status is the body of GET /api/status.
type Status struct {
	Control   control.Settings `json:"control"`
	FrameBus  framebus.Stats   `json:"framebus"`
	ResultBus resultbus.Stats  `json:"resultbus"`
	Events    hub.Stats        `json:"events_clients"`
	Frames    hub.Stats        `json:"frame_clients"`
	Extra     map[string]any   `json:"extra,omitempty"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := Status{
		Events: s.eventHub.Stats(),
		Frames: s.frameHub.Stats(),
	}
	if s.env.Control != nil {
		st.Control = s.env.Control.Snapshot()
	}
	if s.env.Frames != nil {
		st.FrameBus = s.env.Frames.Stats()
	}
	if s.env.Results != nil {
		st.ResultBus = s.env.Results.Stats()
	}

	s.mu.RLock()
	if len(s.status) > 0 {
		st.Extra = make(map[string]any, len(s.status))
		for name, fn := range s.status {
			st.Extra[name] = fn()
		}
	}
	s.mu.RUnlock()

	return c.JSON(st)
}

// ControlRequest is the body of POST /api/control.
type ControlRequest struct {
	Kind  string `json:"kind"`
	Value any    `json:"value,omitempty"`
}

func (s *Server) handleControl(c *fiber.Ctx) error {
	var req ControlRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	ev := events.ControlEvent{
		TimestampMs: time.Now().UnixMilli(),
		Kind:        events.ControlKind(req.Kind),
		Value:       req.Value,
	}
	if err := validate(ev); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	s.env.Results.Publish(ev)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued", "kind": ev.Kind})
}

// validate dry-runs ev against a scratch state so bad requests are refused
// before they reach the bus.
func validate(ev events.ControlEvent) error {
	if !ev.Kind.Known() {
		return protocol.ErrUnknownControl
	}
	_, err := control.Apply(control.New(), ev)
	return err
}

func (s *Server) handleAnnouncements(c *fiber.Ctx) error {
	if s.store == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "recorder disabled")
	}
	limit := c.QueryInt("limit", defaultAnnouncementLimit)
	if limit <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be positive")
	}
	limit = min(limit, maxAnnouncementLimit)

	list, err := s.store.RecentAnnouncements(c.UserContext(), limit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []events.FusionAnnouncement{}
	}
	return c.JSON(fiber.Map{"announcements": list, "count": len(list)})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	if s.metrics == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "telemetry disabled")
	}
	return c.JSON(s.metrics.Summary())
}

// handleInbound publishes control messages sent over /ws/events.
func (s *Server) handleInbound(client *hub.Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.logger.Debug("unparseable client message", "client", client.ID, "error", err)
		return
	}
	if msg.Type != protocol.TypeControl {
		return
	}
	ev, err := protocol.ParseControl(msg)
	if err == nil {
		err = validate(ev)
	}
	if err != nil {
		s.logger.Warn("rejected control message", "client", client.ID, "error", err)
		return
	}
	s.env.Results.Publish(ev)
}
