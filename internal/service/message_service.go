package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/repository"
	apperrors "github.com/19niel/Ultra-MIS-Ticketing-System/pkg/util/errorutil"
)

// MessageService owns the append-only conversation of each ticket.
type MessageService struct {
	tickets    *TicketService
	messages   repository.TicketMessageRepository
	directory  *Directory
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// MessageDependencies bundles collaborators for the thread log.
type MessageDependencies struct {
	Tickets     *TicketService
	MessageRepo repository.TicketMessageRepository
	Directory   *Directory
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewMessageService constructs the service.
func NewMessageService(deps MessageDependencies) *MessageService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		tickets:    deps.Tickets,
		messages:   deps.MessageRepo,
		directory:  deps.Directory,
		dispatcher: deps.Dispatcher,
		logger:     logger.With(zap.String("component", "message_service")),
	}
}

// Append adds a message to the thread. Terminal tickets accept no new
// messages.
func (s *MessageService) Append(ctx context.Context, p domain.Principal, ticketID int64, body string) (*domain.TicketMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("message body is required", map[string]any{"message": "required"})
	}

	ticket, err := s.tickets.GetTicket(ctx, p, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewTicketClosed(ticket.ID, string(ticket.Status))
	}

	msg := &domain.TicketMessage{
		TicketID: ticket.ID,
		AuthorID: p.UserID,
		Body:     body,
	}
	if err := s.messages.InsertMessage(ctx, msg); err != nil {
		return nil, s.tickets.storeError(err, ticketID)
	}
	if msg.AuthorName == "" {
		msg.AuthorName, msg.AuthorRole = s.tickets.authorName(ctx, p)
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			Type:     events.EventTicketMessageAppended,
			TicketID: ticket.ID,
			Actor:    events.ActorFromPrincipal(p),
			Payload: events.TicketMessageAppendedPayload{
				MessageID:  msg.ID,
				TicketID:   msg.TicketID,
				AuthorID:   msg.AuthorID,
				AuthorName: msg.AuthorName,
				AuthorRole: msg.AuthorRole,
				Body:       msg.Body,
				CreatedAt:  msg.CreatedAt,
			},
		})
	}
	return msg, nil
}

// List returns the whole thread in creation order.
func (s *MessageService) List(ctx context.Context, p domain.Principal, ticketID int64) ([]domain.TicketMessage, error) {
	if _, err := s.tickets.GetTicket(ctx, p, ticketID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.QueryMessages(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	domain.SortMessages(msgs)
	return msgs, nil
}
