package control

import (
	"context"
	"time"

	"stock-sync/core/logger"
	"stock-sync/feature/agent"
	"stock-sync/feature/history"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// enqueueTimeout bounds how long a request waits for room in the command queue.
const enqueueTimeout = 2 * time.Second

// StatusSource provides the agent's latest status. *agent.Agent satisfies it.
type StatusSource interface {
	Status() *agent.Snapshot
}

// ReportLister lists stored sync reports. *history.Store satisfies it.
type ReportLister interface {
	List(ctx context.Context, service string, limit int) ([]history.SyncReport, error)
}

// CommandRequest is the body of POST /agent/commands.
type CommandRequest struct {
	Command string `json:"command"`
}

// Handler handles HTTP requests for the agent.
type Handler struct {
	status   StatusSource
	commands chan<- string
	reports  ReportLister
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler. reports may be nil.
func NewHandler(status StatusSource, commands chan<- string, reports ReportLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{status: status, commands: commands, reports: reports, logger: logger}
}

// RegisterRoutes registers the control routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/agent")
	group.Get("/status", h.HandleStatus)
	group.Post("/commands", h.HandleCommand)
	group.Get("/history", h.HandleHistory)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

// HandleStatus returns the latest status snapshot.
func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	snap := h.status.Status()
	if snap == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "agent not started"})
	}
	return c.JSON(snap)
}

// HandleCommand validates a command and queues it for the control loop.
func (h *Handler) HandleCommand(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	cmd, err := agent.ParseCommand(req.Command)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	timer := time.NewTimer(enqueueTimeout)
	defer timer.Stop()
	select {
	case h.commands <- req.Command:
	case <-timer.C:
		l.Warn("Command queue full", zap.String("command", req.Command))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "command queue full"})
	}

	l.Info("Command queued", zap.String("command", cmd.Name))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": req.Command})
}

// HandleHistory returns recent sync reports.
func (h *Handler) HandleHistory(c *fiber.Ctx) error {
	if h.reports == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "history disabled"})
	}
	rows, err := h.reports.List(c.Context(), c.Query("service"), c.QueryInt("limit", history.DefaultLimit))
	if err != nil {
		logger.WithRayID(h.logger, c).Error("History query failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(rows)
}
