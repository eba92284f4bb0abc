package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/request-desk/internal/config"
)

// SyncHandler tells polling clients how to schedule their refreshes.
type SyncHandler struct {
	cfg config.SyncConfig
}

// NewSyncHandler constructs the handler.
func NewSyncHandler(cfg config.SyncConfig) *SyncHandler {
	return &SyncHandler{cfg: cfg}
}

// Policy GET /sync/policy. Returns the server's polling cadence and the
// recency window applied to unread counts, so clients don't hardcode either.
func (h *SyncHandler) Policy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"poll_interval_seconds":  int(h.cfg.PollInterval() / time.Second),
			"recency_window_minutes": int(h.cfg.RecencyWindow() / time.Minute),
		},
	})
}
