package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/api/dto"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
	apperrors "github.com/19niel/Ultra-MIS-Ticketing-System/pkg/util/errorutil"
)

// EventLog exposes the bus replay buffer.
type EventLog interface {
	Since(seq uint64) ([]events.Event, error)
	LastSeq() uint64
}

// EventsHandler lets polling clients catch up without a websocket.
type EventsHandler struct {
	log EventLog
}

// NewEventsHandler constructs handler.
func NewEventsHandler(log EventLog) *EventsHandler {
	return &EventsHandler{log: log}
}

// Since GET /api/events?since=N. Answers 410 when the buffer no longer
// reaches back to N.
func (h *EventsHandler) Since(c *fiber.Ctx) error {
	var since uint64
	if raw := c.Query("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return apperrors.NewValidationError("invalid since", map[string]any{"since": raw})
		}
		since = parsed
	}
	last := h.log.LastSeq()
	backlog, err := h.log.Since(since)
	if errors.Is(err, events.ErrReplayGap) {
		return apperrors.NewResyncRequired(since, last)
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if backlog == nil {
		backlog = []events.Event{}
	}
	if n := len(backlog); n > 0 {
		last = backlog[n-1].Seq
	}
	return c.JSON(fiber.Map{"data": dto.EventsResponse{Events: backlog, LastSeq: last}})
}
