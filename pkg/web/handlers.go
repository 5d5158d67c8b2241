package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-follower/pkg/hub"
	"github.com/teslashibe/go-follower/pkg/tracking"
)

// handleHealth is a liveness probe
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus returns the follower state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	state := s.State()
	return c.JSON(fiber.Map{
		"follower":     state,
		"pose_clients": s.poseHub.ClientCount(),
	})
}

// handleGetTuning returns the active tuning parameters
func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	if s.OnGetTuning == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "tuning not configured",
		})
	}
	return c.JSON(s.OnGetTuning())
}

// handleSetTuning applies tuning parameters; omitted fields are unchanged
func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	if s.OnSetTuning == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "tuning not configured",
		})
	}

	var req tracking.Tuning
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body: " + err.Error(),
		})
	}

	if err := s.OnSetTuning(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.AddLog("tuning", "tuning updated")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

// handleGetLogs returns recent event lines
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// handlePoseWS streams pose and presence events
func (s *Server) handlePoseWS(c *websocket.Conn) {
	binary, _ := c.Locals("binary").(bool)
	hub.NewClient(s.poseHub, c, binary).Run()
}

// handleLogsWS streams event lines
func (s *Server) handleLogsWS(c *websocket.Conn) {
	hub.NewClient(s.logHub, c, false).Run()
}
