// Package web serves the follower dashboard: status, runtime tuning and a
// live pose stream.
package web

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/hub"
	"github.com/teslashibe/go-follower/pkg/tracking"
)

// FollowerState is the dashboard's view of the follower
type FollowerState struct {
	SensorState    string `json:"sensor_state"`
	SensorEndpoint string `json:"sensor_endpoint"`
	SessionID      string `json:"session_id"`
	Messages       uint64 `json:"messages"`
	Batches        uint64 `json:"batches"`
	DecodeErrors   uint64 `json:"decode_errors"`
	Reconnects     uint64 `json:"reconnects"`

	Ticks     uint64 `json:"ticks"`
	Delivered uint64 `json:"delivered"`

	Present  bool      `json:"present"`
	LastSeen time.Time `json:"last_seen,omitzero"`

	HasTarget bool       `json:"has_target"`
	Position  [3]float64 `json:"position"`
	Target    [3]float64 `json:"target"`
	Distance  float64    `json:"distance"`
	Speed     float64    `json:"speed"`
	Arrived   bool       `json:"arrived"`
	Retargets uint64     `json:"retargets"`
	Inert     bool       `json:"inert"`

	UpdatedAt time.Time `json:"updated_at"`
}

// LogEntry is one dashboard event line
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, sensor, presence, tuning, error
	Message string `json:"message"`
}

const maxLogs = 500

// Server is the web dashboard server
type Server struct {
	app  *fiber.App
	port string
	log  *slog.Logger

	state   FollowerState
	stateMu sync.RWMutex

	logs   []LogEntry
	logsMu sync.RWMutex

	poseHub *hub.Hub
	logHub  *hub.Hub

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	// OnGetTuning returns the active tuning parameters
	OnGetTuning func() tracking.Tuning

	// OnSetTuning applies new tuning parameters. A returned error is
	// reported to the caller as 400.
	OnSetTuning func(tracking.Tuning) error
}

// NewServer creates a new dashboard server
func NewServer(port string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		port:    port,
		log:     log.Component("web"),
		logs:    make([]LogEntry, 0, maxLogs),
		poseHub: hub.New("pose"),
		logHub:  hub.New("logs"),
		ctx:     ctx,
		cancel:  cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Follower Dashboard",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/tuning", s.handleGetTuning)
	api.Post("/tuning", s.handleSetTuning)
	api.Get("/logs", s.handleGetLogs)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("binary", c.Query("format") == "cbor")
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/pose", websocket.New(s.handlePoseWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))

	s.app = app
	return s
}

func (s *Server) startHubs() {
	s.once.Do(func() {
		go s.poseHub.Run(s.ctx)
		go s.logHub.Run(s.ctx)
	})
}

// Start serves on the configured port and blocks
func (s *Server) Start() error {
	s.log.Info("dashboard listening", "url", "http://localhost:"+s.port)
	s.startHubs()
	return s.app.Listen(":" + s.port)
}

// Serve serves on an existing listener and blocks
func (s *Server) Serve(ln net.Listener) error {
	s.startHubs()
	return s.app.Listener(ln)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.log.Warn("web server stopped", "error", err)
		}
	}()
}

// UpdateState changes the dashboard state. It does not broadcast; poses
// go out through Publish.
func (s *Server) UpdateState(update func(*FollowerState)) {
	s.stateMu.Lock()
	update(&s.state)
	s.state.UpdatedAt = time.Now()
	s.stateMu.Unlock()
}

// State returns a copy of the dashboard state
func (s *Server) State() FollowerState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// AddLog records an event line and pushes it to /ws/logs clients
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}

// PoseHub returns the pose hub for external use
func (s *Server) PoseHub() *hub.Hub {
	return s.poseHub
}

// Shutdown stops the hubs and the HTTP server
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}
