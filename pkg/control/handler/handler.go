// Package handler applies ControlEvents from the result bus to the shared control state.
package handler

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/control"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/resultbus"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
)

// Handler is the control stage.
type Handler struct {
	stage.Runner
	logger     *slog.Logger
	onShutdown func()
}

// New creates a handler. onShutdown runs once per shutdown event and may be nil.
func New(logger *slog.Logger, onShutdown func()) *Handler {
	return &Handler{logger: log.Or(logger, "control"), onShutdown: onShutdown}
}

// Name implements stage.Module.
func (h *Handler) Name() string { return "control" }

// Start implements stage.Module.
func (h *Handler) Start(ctx context.Context, env stage.Env) ([]*stage.Task, error) {
	ctx = h.Begin(ctx)
	sub := resultbus.SubscribeType[events.ControlEvent](env.Results)

	return []*stage.Task{stage.Go(h.logger, "control.apply", func() error {
		defer sub.Close()
		for h.Running() {
			ev, ok := sub.Next(ctx)
			if !ok {
				return nil
			}
			h.handle(env.Control, ev)
		}
		return nil
	})}, nil
}

func (h *Handler) handle(st *control.State, ev events.ControlEvent) {
	if ev.Kind == events.ControlShutdown {
		h.logger.Info("shutdown requested")
		if h.onShutdown != nil {
			h.onShutdown()
		}
		return
	}

	applied, err := control.Apply(st, ev)
	switch {
	case err != nil:
		h.logger.Warn("rejected control event", "kind", ev.Kind, "value", ev.Value, "error", err)
	case applied:
		h.logger.Info("control applied", "kind", ev.Kind, "value", ev.Value)
	case !ev.Kind.Known():
		h.logger.Warn("unknown control kind", "kind", ev.Kind)
	}
}
