package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/api/dto"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/auth"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/service"
	apperrors "github.com/19niel/Ultra-MIS-Ticketing-System/pkg/util/errorutil"
)

// StatsSource returns the current dashboard aggregate.
type StatsSource interface {
	Snapshot(ctx context.Context) (domain.Stats, error)
}

// TicketsHandler serves the ticket REST endpoints.
type TicketsHandler struct {
	service *service.TicketService
	stats   StatsSource
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, stats StatsSource) *TicketsHandler {
	return &TicketsHandler{service: ticketService, stats: stats}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), principal, service.TicketCreateInput{
		Subject:     req.Subject,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		Department:  req.Department,
		Branch:      req.Branch,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.TicketDetailFromDomain(ticket)})
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	result, err := h.service.ListTickets(c.UserContext(), principal, parseTicketQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketListResponse{
		Items:      dto.TicketRows(result.Items),
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), principal, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketDetailFromDomain(ticket)})
}

// ChangeStatus PUT /api/tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.ChangeStatus(c.UserContext(), principal, id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketDetailFromDomain(ticket)})
}

// ChangePriority PUT /api/tickets/:id/priority.
func (h *TicketsHandler) ChangePriority(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.ChangePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.ChangePriority(c.UserContext(), principal, id, req.Priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketDetailFromDomain(ticket)})
}

// Assign PUT /api/tickets/:id/assign. A null assignee_id unassigns.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Assign(c.UserContext(), principal, id, req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketDetailFromDomain(ticket)})
}

// LatestNumber GET /api/tickets/latest-number.
func (h *TicketsHandler) LatestNumber(c *fiber.Ctx) error {
	number, err := h.service.LatestTicketNumber(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LatestNumberResponse{TicketNumber: number}})
}

// Stats GET /api/tickets/stats/summary.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.stats.Snapshot(c.UserContext())
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": stats})
}

// SupportUsers GET /api/tickets/support-users.
func (h *TicketsHandler) SupportUsers(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	users, err := h.service.SupportUsers(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UsersFromDomain(users)})
}

// History GET /api/tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), principal, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.HistoryFromDomain(entries)})
}

func requirePrincipal(c *fiber.Ctx) (domain.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Principal{}, apperrors.NewUnauthorized("user required")
	}
	return principal, nil
}

func ticketID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

// parseTicketQuery accepts both repeated keys (?status=Open&status=Closed)
// and comma lists (?status=Open,Closed).
func parseTicketQuery(c *fiber.Ctx) service.TicketListInput {
	return service.TicketListInput{
		Statuses:     queryList(c, "status"),
		Priorities:   queryList(c, "priority"),
		Categories:   queryList(c, "category"),
		Search:       strings.TrimSpace(c.Query("search")),
		AssignedToMe: c.QueryBool("assigned_to_me", false),
		Page:         parseInt(c.Query("page"), 1),
		PageSize:     parseInt(c.Query("page_size"), 0),
	}
}

func queryList(c *fiber.Ctx, key string) []string {
	var out []string
	for _, raw := range c.Context().QueryArgs().PeekMulti(key) {
		for _, part := range strings.Split(string(raw), ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
