package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/repository"
	apperrors "github.com/19niel/Ultra-MIS-Ticketing-System/pkg/util/errorutil"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// TicketService coordinates ticket workflows. Every command publishes its
// event only after the store accepted the write.
type TicketService struct {
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	directory  *Directory
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Directory   *Directory
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Clock       func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject     string
	Description string
	Category    string
	Priority    string
	Department  string
	Branch      string
}

// TicketListInput describes list filters. Employees only ever see tickets
// they filed.
type TicketListInput struct {
	Statuses     []string
	Priorities   []string
	Categories   []string
	Search       string
	AssignedToMe bool
	Page         int
	PageSize     int
}

// TicketListResult is one page of tickets.
type TicketListResult struct {
	Items      []domain.Ticket
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		directory:  deps.Directory,
		dispatcher: deps.Dispatcher,
		logger:     logger.With(zap.String("component", "ticket_service")),
		now:        clock,
	}
}

// CreateTicket files a new ticket for the principal. The store assigns the
// next ticket number.
func (s *TicketService) CreateTicket(ctx context.Context, p domain.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	description := strings.TrimSpace(input.Description)
	details := map[string]any{}
	if subject == "" {
		details["subject"] = "required"
	}
	if description == "" {
		details["description"] = "required"
	}

	category := domain.TicketCategoryOther
	if strings.TrimSpace(input.Category) != "" {
		parsed, ok := domain.ParseTicketCategory(input.Category)
		if !ok {
			details["category"] = "unknown category"
		}
		category = parsed
	}
	priority := domain.TicketPriorityMedium
	if strings.TrimSpace(input.Priority) != "" {
		parsed, ok := domain.ParseTicketPriority(input.Priority)
		if !ok {
			details["priority"] = "unknown priority"
		}
		priority = parsed
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}

	ticket := &domain.Ticket{
		Subject:     subject,
		Description: description,
		Category:    category,
		Priority:    priority,
		Status:      domain.TicketStatusOpen,
		Department:  strings.TrimSpace(input.Department),
		Branch:      strings.TrimSpace(input.Branch),
		CreatedBy:   p.UserID,
	}
	if err := s.tickets.InsertTicket(ctx, ticket); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if ticket.CreatedByName == "" {
		ticket.CreatedByName, _ = s.authorName(ctx, p)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.ActorFromPrincipal(p),
		Payload:  events.TicketCreatedPayload{Ticket: events.SummaryFromTicket(ticket)},
	})
	return ticket, nil
}

// ChangeStatus moves a ticket through the transition table.
func (s *TicketService) ChangeStatus(ctx context.Context, p domain.Principal, ticketID int64, rawStatus string) (*domain.Ticket, error) {
	if strings.TrimSpace(rawStatus) == "" {
		return nil, apperrors.NewValidationError("status is required", map[string]any{"status": "required"})
	}
	next, ok := domain.ParseTicketStatus(rawStatus)
	if !ok {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": rawStatus})
	}
	if !p.Role.IsSupport() {
		return nil, apperrors.NewForbidden("only support staff may change ticket status")
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	kind := domain.ClassifyTransition(ticket.Status, next)
	switch kind {
	case domain.TransitionIllegal:
		return nil, apperrors.NewIllegalTransition(string(ticket.Status), string(next))
	case domain.TransitionReopen:
		if !p.Role.CanReopen() {
			return nil, apperrors.NewForbidden("only administrators may reopen tickets")
		}
	}

	oldStatus := ticket.Status
	now := s.now()
	ticket.ApplyStatus(next, now)
	update := repository.TicketFieldUpdate{
		Status:      &ticket.Status,
		ClosedAt:    ticket.ClosedAt,
		SetClosedAt: true,
		UpdatedAt:   now,
	}
	if err := s.tickets.UpdateTicketFields(ctx, ticket.ID, update); err != nil {
		return nil, s.storeError(err, ticketID)
	}

	changeType := domain.ChangeTypeStatus
	if kind == domain.TransitionReopen {
		changeType = domain.ChangeTypeReopen
	}
	s.recordHistory(ctx, p, ticket.ID, changeType,
		map[string]any{"status": oldStatus},
		map[string]any{"status": next})

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    events.ActorFromPrincipal(p),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			Status:    next,
			ClosedAt:  ticket.ClosedAt,
			UpdatedAt: now,
			Reopened:  kind == domain.TransitionReopen,
		},
	})
	return ticket, nil
}

// ChangePriority sets the ticket priority. Priority is independent of status.
func (s *TicketService) ChangePriority(ctx context.Context, p domain.Principal, ticketID int64, rawPriority string) (*domain.Ticket, error) {
	if strings.TrimSpace(rawPriority) == "" {
		return nil, apperrors.NewValidationError("priority is required", map[string]any{"priority": "required"})
	}
	next, ok := domain.ParseTicketPriority(rawPriority)
	if !ok {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": rawPriority})
	}
	if !p.Role.IsSupport() {
		return nil, apperrors.NewForbidden("only support staff may change ticket priority")
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	oldPriority := ticket.Priority
	now := s.now()
	ticket.Priority = next
	ticket.UpdatedAt = now
	if err := s.tickets.UpdateTicketFields(ctx, ticket.ID, repository.TicketFieldUpdate{Priority: &next, UpdatedAt: now}); err != nil {
		return nil, s.storeError(err, ticketID)
	}
	s.recordHistory(ctx, p, ticket.ID, domain.ChangeTypePriority,
		map[string]any{"priority": oldPriority},
		map[string]any{"priority": next})

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		Actor:    events.ActorFromPrincipal(p),
		Payload: events.TicketPriorityChangedPayload{
			OldPriority: oldPriority,
			Priority:    next,
			UpdatedAt:   now,
		},
	})
	return ticket, nil
}

// Assign sets or clears the assignee. An id the directory cannot resolve
// is still stored but displayed as unassigned.
func (s *TicketService) Assign(ctx context.Context, p domain.Principal, ticketID int64, assigneeID *int64) (*domain.Ticket, error) {
	if assigneeID != nil && *assigneeID <= 0 {
		return nil, apperrors.NewValidationError("invalid assignee", map[string]any{"assignee_id": *assigneeID})
	}
	if !p.Role.IsSupport() {
		return nil, apperrors.NewForbidden("only support staff may assign tickets")
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	oldAssignee := ticket.AssigneeID
	now := s.now()
	update := repository.TicketFieldUpdate{AssigneeID: assigneeID, SetAssignee: true, UpdatedAt: now}
	if err := s.tickets.UpdateTicketFields(ctx, ticket.ID, update); err != nil {
		return nil, s.storeError(err, ticketID)
	}

	label := domain.UnassignedLabel
	ticket.AssigneeID = assigneeID
	ticket.AssigneeName = ""
	ticket.UpdatedAt = now
	if s.directory != nil {
		label = s.directory.AssigneeLabel(ctx, assigneeID)
		if label != domain.UnassignedLabel {
			ticket.AssigneeName = label
		}
	}

	s.recordHistory(ctx, p, ticket.ID, domain.ChangeTypeAssignee,
		map[string]any{"assignee_id": oldAssignee},
		map[string]any{"assignee_id": assigneeID, "assigned_to": label})

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigneeChanged,
		TicketID: ticket.ID,
		Actor:    events.ActorFromPrincipal(p),
		Payload: events.TicketAssigneeChangedPayload{
			OldAssigneeID: oldAssignee,
			AssigneeID:    assigneeID,
			AssigneeName:  label,
			UpdatedAt:     now,
		},
	})
	return ticket, nil
}

// GetTicket returns one ticket. Employees may only read their own.
func (s *TicketService) GetTicket(ctx context.Context, p domain.Principal, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := canRead(p, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// ListTickets returns a filtered page ordered newest first.
func (s *TicketService) ListTickets(ctx context.Context, p domain.Principal, input TicketListInput) (*TicketListResult, error) {
	filter, page, pageSize, err := buildFilter(input)
	if err != nil {
		return nil, err
	}
	if !p.Role.IsSupport() {
		owner := p.UserID
		filter.CreatedBy = &owner
	}
	if input.AssignedToMe {
		assignee := p.UserID
		filter.AssigneeID = &assignee
	}

	result, err := s.tickets.QueryTickets(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	totalPages := int((result.Total + int64(pageSize) - 1) / int64(pageSize))
	items := result.Items
	if items == nil {
		items = []domain.Ticket{}
	}
	return &TicketListResult{
		Items:      items,
		Total:      result.Total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// LatestTicketNumber returns the most recently issued number, formatted.
// It is empty before the first ticket.
func (s *TicketService) LatestTicketNumber(ctx context.Context) (string, error) {
	latest, err := s.tickets.GetLatestTicketNumber(ctx)
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}
	if latest == 0 {
		return "", nil
	}
	return domain.FormatTicketNumber(latest), nil
}

// SupportUsers lists possible assignees.
func (s *TicketService) SupportUsers(ctx context.Context, p domain.Principal) ([]domain.User, error) {
	if !p.Role.IsSupport() {
		return nil, apperrors.NewForbidden("only support staff may list assignees")
	}
	users, err := s.directory.SupportUsers(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return users, nil
}

// History returns the audit trail of a ticket.
func (s *TicketService) History(ctx context.Context, p domain.Principal, ticketID int64) ([]domain.TicketHistory, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := canRead(p, ticket); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return entries, nil
}

func buildFilter(input TicketListInput) (repository.TicketFilter, int, int, error) {
	details := map[string]any{}
	filter := repository.TicketFilter{}

	for _, raw := range input.Statuses {
		status, ok := domain.ParseTicketStatus(raw)
		if !ok {
			details["status"] = raw
			continue
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, raw := range input.Priorities {
		priority, ok := domain.ParseTicketPriority(raw)
		if !ok {
			details["priority"] = raw
			continue
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	for _, raw := range input.Categories {
		category, ok := domain.ParseTicketCategory(raw)
		if !ok {
			details["category"] = raw
			continue
		}
		filter.Categories = append(filter.Categories, category)
	}
	if len(details) > 0 {
		return filter, 0, 0, apperrors.NewValidationError("invalid filter", details)
	}
	if search := strings.TrimSpace(input.Search); search != "" {
		filter.SearchTerm = &search
	}

	page := input.Page
	if page < 1 {
		page = 1
	}
	pageSize := input.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize
	return filter, page, pageSize, nil
}

func canRead(p domain.Principal, ticket *domain.Ticket) error {
	if p.Role.IsSupport() || ticket.CreatedBy == p.UserID {
		return nil
	}
	return apperrors.NewForbidden("access denied")
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	if ticketID <= 0 {
		return nil, apperrors.NewValidationError("invalid ticket id", map[string]any{"ticket_id": ticketID})
	}
	ticket, err := s.tickets.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, s.storeError(err, ticketID)
	}
	return ticket, nil
}

func (s *TicketService) storeError(err error, ticketID int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return apperrors.NewInternalError(err)
}

func (s *TicketService) authorName(ctx context.Context, p domain.Principal) (string, domain.UserRole) {
	if s.directory == nil {
		return p.Name, p.Role
	}
	return s.directory.Author(ctx, p)
}

// recordHistory runs after the write committed; a failure here is logged
// and does not suppress the event.
func (s *TicketService) recordHistory(ctx context.Context, p domain.Principal, ticketID int64, changeType domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:    ticketID,
		ChangedByID: p.UserID,
		ChangeType:  changeType,
		OldValue:    oldValue,
		NewValue:    newValue,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("history write failed",
			zap.Int64("ticket_id", ticketID),
			zap.String("change_type", string(changeType)),
			zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}
