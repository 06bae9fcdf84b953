package web

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/protocol"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
)

// DefaultFrameEvery forwards one frame in six, 5 fps from a 30 fps source.
const DefaultFrameEvery = 6

// Bridge is the stage that feeds the dashboard hubs from the buses.
type Bridge struct {
	stage.Runner
	server     *Server
	frameEvery int
	logger     *slog.Logger
}

// NewBridge creates the bridge. frameEvery <= 0 uses DefaultFrameEvery.
func NewBridge(server *Server, frameEvery int, logger *slog.Logger) *Bridge {
	if frameEvery <= 0 {
		frameEvery = DefaultFrameEvery
	}
	return &Bridge{server: server, frameEvery: frameEvery, logger: log.Or(logger, "web.bridge")}
}

// Name implements stage.Module.
func (b *Bridge) Name() string { return "web.bridge" }

// Start implements stage.Module.
func (b *Bridge) Start(ctx context.Context, env stage.Env) ([]*stage.Task, error) {
	ctx = b.Begin(ctx)
	frames := env.Frames.Subscribe()
	results := env.Results.SubscribeAll()

	frameTask := stage.Go(b.logger, "web.frames", func() error {
		defer frames.Close()
		n := 0
		for pkt := range frames.Frames(ctx) {
			n++
			if n%b.frameEvery != 0 || len(pkt.JPEG) == 0 {
				continue
			}
			if b.server.frameHub.ClientCount() == 0 {
				continue
			}
			b.server.frameHub.BroadcastBinary(pkt.JPEG)
		}
		return nil
	})

	eventTask := stage.Go(b.logger, "web.events", func() error {
		defer results.Close()
		for ev := range results.Events(ctx) {
			b.forward(b.server.eventHub, ev)
		}
		return nil
	})

	return []*stage.Task{frameTask, eventTask}, nil
}

func (b *Bridge) forward(h *hub.Hub, ev any) {
	if events.TypeName(ev) == "" || h.ClientCount() == 0 {
		return
	}
	msg, err := protocol.NewEventMessage(ev)
	if err != nil {
		b.logger.Warn("encode event", "error", err)
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		b.logger.Warn("encode event", "error", err)
		return
	}
	h.Broadcast(hub.NewJSONMessage(data))
}
