package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/eventlog"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/middleware"
)

const maxEventPageSize = 200

// HandleListEventsAPI returns the caller's notification events after the
// given sequence number, oldest first. Clients poll with the last sequence
// they have seen; sequences are strictly increasing so nothing is skipped or
// delivered twice.
func HandleListEventsAPI(c *fiber.Ctx) error {
	after := uint64(c.QueryInt("after", 0))
	limit := c.QueryInt("limit", 100)
	if limit <= 0 || limit > maxEventPageSize {
		limit = maxEventPageSize
	}

	userID := middleware.CurrentUserID(c)
	events, err := deps.EventLog.GetEventsForRecipient(userID, after, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load events"})
	}

	// Each read-side connection opportunistically trims the log, so retention
	// holds without relying on the background job alone.
	go deps.EventLog.Cleanup(eventlog.DefaultRetentionMinutes)

	nextAfter := after
	if len(events) > 0 {
		nextAfter = events[len(events)-1].Sequence
	}
	return c.JSON(fiber.Map{
		"events":     events,
		"next_after": nextAfter,
	})
}
