package sim

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/protocol"
)

// malformedFrame is a truncated record array
var malformedFrame = []byte(`[{"person_id": 1, "x": 320.0, "y":`)

// Server streams synthetic frames to every websocket client that
// connects to "/".
type Server struct {
	cfg Config
	app *fiber.App
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	connections atomic.Int64
	framesSent  atomic.Uint64
}

// NewServer creates a simulator server
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		log:    log.Component("sim"),
		ctx:    ctx,
		cancel: cancel,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "Sensor Simulator",
		DisableStartupMessage: true,
	})
	s.RegisterRoutes(s.app)
	return s, nil
}

// RegisterRoutes registers the stream endpoint on a Fiber app
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Use("/", func(c *fiber.Ctx) error {
		if c.Path() == "/" && !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	app.Get("/", websocket.New(s.handleStream))
}

// Start listens on addr and blocks
func (s *Server) Start(addr string) error {
	s.log.Info("sensor simulator listening", "url", "ws://"+addr, "encoding", s.cfg.Encoding)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener and blocks
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops all streams and the HTTP server
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}

// Connections returns the number of open streams
func (s *Server) Connections() int64 {
	return s.connections.Load()
}

// FramesSent returns the total frames written across all streams
func (s *Server) FramesSent() uint64 {
	return s.framesSent.Load()
}

// handleStream writes frames until the client leaves or the server stops
func (s *Server) handleStream(c *websocket.Conn) {
	id := uuid.NewString()
	count := s.connections.Add(1)
	s.log.Info("client connected", "client", id, "total", count)
	defer func() {
		remaining := s.connections.Add(-1)
		s.log.Info("client disconnected", "client", id, "remaining", remaining)
	}()

	// Reading processes close and ping frames; it ends when the peer goes
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	gen := NewGenerator(s.cfg)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-s.ctx.Done():
			c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "simulator stopping"),
				time.Now().Add(time.Second))
			return
		case <-gone:
			return
		case now := <-ticker.C:
			msgType, payload, ok := s.frame(gen, now.Sub(start), now)
			if !ok {
				continue
			}
			if err := c.WriteMessage(msgType, payload); err != nil {
				s.log.Debug("write failed", "client", id, "error", err)
				return
			}
			s.framesSent.Add(1)
		}
	}
}

// frame builds the next message. ok is false when nothing should be sent.
func (s *Server) frame(gen *Generator, elapsed time.Duration, now time.Time) (msgType int, payload []byte, ok bool) {
	n := gen.Frame() + 1
	records := gen.Next(elapsed, now)

	if s.cfg.MalformedEvery > 0 && n%s.cfg.MalformedEvery == 0 {
		return websocket.TextMessage, malformedFrame, true
	}
	if s.cfg.EmptyEvery > 0 && n%s.cfg.EmptyEvery == 0 {
		records = nil
	} else if len(records) == 0 && !s.cfg.SendEmpty {
		return 0, nil, false
	}

	data, err := protocol.Encode(records, s.cfg.Encoding)
	if err != nil {
		s.log.Error("encode failed", "error", err)
		return 0, nil, false
	}

	msgType = websocket.TextMessage
	if s.cfg.Encoding == protocol.CBOR {
		msgType = websocket.BinaryMessage
	}
	return msgType, data, true
}
