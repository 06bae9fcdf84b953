// Package web serves the live dashboard API: status, control, recorded
// announcements, metrics and websocket feeds of events and frames.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
	"github.com/teslashibe/go-wayfinder/pkg/telemetry"
)

// Config configures the server.
type Config struct {
	Addr      string
	Debug     bool   // request logging
	StaticDir string // optional dashboard assets served at /
}

// DefaultConfig returns a server on :8080.
func DefaultConfig() Config {
	return Config{Addr: ":8080"}
}

// AnnouncementStore reads recorded announcements.
type AnnouncementStore interface {
	RecentAnnouncements(ctx context.Context, limit int) ([]events.FusionAnnouncement, error)
}

// MetricsSource gives the current telemetry summary.
type MetricsSource interface {
	Summary() telemetry.Summary
}

// Option customizes a Server.
type Option func(*Server)

// WithStore enables /api/announcements.
func WithStore(store AnnouncementStore) Option {
	return func(s *Server) { s.store = store }
}

// WithMetrics enables /api/metrics.
func WithMetrics(m MetricsSource) Option {
	return func(s *Server) { s.metrics = m }
}

// Server is the dashboard server.
type Server struct {
	cfg    Config
	env    stage.Env
	app    *fiber.App
	logger *slog.Logger

	eventHub *hub.Hub
	frameHub *hub.Hub

	store   AnnouncementStore
	metrics MetricsSource

	mu     sync.RWMutex
	status map[string]func() any
}

// New creates the server and registers its routes. env must carry the
// buses and control state the server reports on.
func New(cfg Config, env stage.Env, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		env:    env,
		logger: log.Or(logger, "web"),
		status: make(map[string]func() any),
	}
	s.eventHub = hub.New("events", s.logger)
	s.frameHub = hub.New("frames", s.logger)
	for _, opt := range opts {
		opt(s)
	}
	s.eventHub.OnMessage(s.handleInbound)

	app := fiber.New(fiber.Config{
		AppName:               "wayfinder",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if cfg.Debug {
		app.Use(fiberlog.New())
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/control", s.handleControl)
	api.Get("/announcements", s.handleAnnouncements)
	api.Get("/metrics", s.handleMetrics)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.serveHub(s.eventHub)))
	app.Get("/ws/frames", websocket.New(s.serveHub(s.frameHub)))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// App exposes the fiber app so other packages can mount routes on it.
func (s *Server) App() *fiber.App { return s.app }

// AddStatus adds a named section to /api/status.
func (s *Server) AddStatus(name string, fn func() any) {
	s.mu.Lock()
	s.status[name] = fn
	s.mu.Unlock()
}

// EventHub returns the hub behind /ws/events.
func (s *Server) EventHub() *hub.Hub { return s.eventHub }

// FrameHub returns the hub behind /ws/frames.
func (s *Server) FrameHub() *hub.Hub { return s.frameHub }

// Start listens on cfg.Addr and serves until ctx is done or Shutdown is
// called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done or Shutdown is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.eventHub.Run(ctx)
	go s.frameHub.Run(ctx)
	go func() {
		<-ctx.Done()
		s.app.Shutdown()
	}()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	err := s.app.Listener(ln)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		client := hub.NewClient(h, conn)
		if client == nil {
			conn.Close()
			return
		}
		client.Run()
	}
}
