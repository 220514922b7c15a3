package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/api/dto"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/service"
	apperrors "github.com/19niel/Ultra-MIS-Ticketing-System/pkg/util/errorutil"
)

// MessagesHandler serves a ticket's conversation thread.
type MessagesHandler struct {
	service *service.MessageService
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(messageService *service.MessageService) *MessagesHandler {
	return &MessagesHandler{service: messageService}
}

// ListMessages GET /api/tickets/:id/messages.
func (h *MessagesHandler) ListMessages(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	msgs, err := h.service.List(c.UserContext(), principal, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessagesFromDomain(msgs)})
}

// AppendMessage POST /api/tickets/:id/messages.
func (h *MessagesHandler) AppendMessage(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.service.Append(c.UserContext(), principal, id, req.Message)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.MessageFromDomain(*msg)})
}
