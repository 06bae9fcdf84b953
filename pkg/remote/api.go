package remote

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Stats are hub counters.
type Stats struct {
	Devices          int    `json:"devices"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	FramesDropped    uint64 `json:"frames_dropped"`
}

// Stats returns the counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Devices:          h.DeviceCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		FramesDropped:    h.framesDropped.Load(),
	}
}

// DeviceInfo describes a connected device.
type DeviceInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// DeviceInfos lists the connected devices.
func (h *Hub) DeviceInfos() []DeviceInfo {
	devices := h.Devices()
	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, DeviceInfo{ID: d.ID, Connected: d.Connected, LastSeen: d.LastSeen()})
	}
	return infos
}

// RegisterAPIRoutes mounts /devices and /devices/stats on api.
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	devices := api.Group("/devices")
	devices.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"devices": h.DeviceInfos(),
			"count":   h.DeviceCount(),
		})
	})
	devices.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.Stats())
	})
}
