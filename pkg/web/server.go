// Package web serves the live classification dashboard: a REST API to drive
// the session, websocket feeds for status, camera preview and logs, and the
// static front end.
package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-recognize/internal/config"
	"github.com/teslashibe/go-recognize/pkg/hub"
	"github.com/teslashibe/go-recognize/pkg/inference"
	"github.com/teslashibe/go-recognize/pkg/session"
)

// maxLogEntries bounds the in-memory log backlog.
const maxLogEntries = 500

// Controller is the session surface the dashboard drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Toggle(ctx context.Context) error
	Once(ctx context.Context) (session.Update, error)
	State() session.State
	Status() session.Update
	Last() (session.Update, bool)
	Stats() session.Stats
	Engine() (inference.Engine, bool)
	Threshold() float64
}

// Options configures the server.
type Options struct {
	// Config is reported by /api/config and supplies UI and capture settings.
	Config *config.Config

	// Loader provides an engine for /api/predict and /api/metadata.json while
	// the session is stopped.
	Loader inference.LoaderFunc

	// Logger for server diagnostics.
	Logger *slog.Logger

	// AccessLog, when set, receives one line per HTTP request.
	AccessLog io.Writer
}

// Server is the web dashboard server.
type Server struct {
	app    *fiber.App
	cfg    *config.Config
	logger *slog.Logger

	ctrlMu sync.RWMutex
	ctrl   Controller

	// Engine used for uploads while the session is stopped, loaded lazily.
	loader   inference.LoaderFunc
	engineMu sync.Mutex
	engine   inference.Engine

	logs   []LogEntry
	logsMu sync.RWMutex

	statusHub *hub.Hub
	logHub    *hub.Hub
	cameraHub *hub.Hub
}

// NewServer creates the dashboard. Attach a session before serving.
func NewServer(opts Options) *Server {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	base := opts.Logger

	s := &Server{
		cfg:       opts.Config,
		logger:    base.With("component", "web"),
		loader:    opts.Loader,
		logs:      make([]LogEntry, 0, maxLogEntries),
		statusHub: hub.New("status", base),
		logHub:    hub.New("logs", base),
		cameraHub: hub.New("camera", base),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-recognize",
		DisableStartupMessage: true,
		BodyLimit:             8 << 20,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if opts.AccessLog != nil {
		app.Use(logger.New(logger.Config{Output: opts.AccessLog}))
	}

	// API routes
	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/status", s.handleStatus)
	api.Get("/config", s.handleConfig)
	api.Get("/logs", s.handleGetLogs)
	api.Get("/metadata.json", s.handleMetadata)
	api.Post("/predict", s.handlePredict)

	sess := api.Group("/session")
	sess.Post("/start", s.handleStart)
	sess.Post("/stop", s.handleStop)
	sess.Post("/toggle", s.handleToggle)
	sess.Post("/once", s.handleOnce)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))

	if dir := opts.Config.Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			app.Static("/", dir)
		} else {
			s.logger.Warn("static directory not found, serving API only", "dir", dir)
		}
	}

	s.app = app
	return s
}

// Attach sets the session the dashboard controls.
func (s *Server) Attach(ctrl Controller) {
	s.ctrlMu.Lock()
	s.ctrl = ctrl
	s.ctrlMu.Unlock()
}

func (s *Server) controller() Controller {
	s.ctrlMu.RLock()
	defer s.ctrlMu.RUnlock()
	return s.ctrl
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs and serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve starts the hubs and serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	go s.logHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", ln.Addr().String())
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	err := s.Shutdown()
	if lerr := <-errCh; lerr != nil && err == nil && !errors.Is(lerr, net.ErrClosed) {
		err = lerr
	}
	return err
}

// Shutdown stops the HTTP server and releases the upload engine.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()

	s.engineMu.Lock()
	if s.engine != nil {
		if cerr := s.engine.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.engine = nil
	}
	s.engineMu.Unlock()
	return err
}

// StatusHub returns the hub carrying session updates.
func (s *Server) StatusHub() *hub.Hub { return s.statusHub }

// LogHub returns the hub carrying log entries.
func (s *Server) LogHub() *hub.Hub { return s.logHub }

// CameraHub returns the hub carrying JPEG previews.
func (s *Server) CameraHub() *hub.Hub { return s.cameraHub }
