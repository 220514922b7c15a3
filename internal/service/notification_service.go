package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/config"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	subs       []*events.Subscription
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("component", "notifications")),
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || len(n.subs) > 0 {
		return
	}
	n.subs = append(n.subs,
		n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated),
		n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged),
		n.dispatcher.Subscribe(events.EventTicketAssigneeChanged, n.handleTicketAssigned),
		n.dispatcher.Subscribe(events.EventTicketMessageAppended, n.handleMessageAppended),
	)
}

// Close removes every subscription.
func (n *NotificationService) Close() {
	for _, sub := range n.subs {
		sub.Unsubscribe()
	}
	n.subs = nil
}

// local reports whether event was raised on this instance. Relayed copies
// are skipped so each notification goes out once per deployment.
func (n *NotificationService) local(event events.Event) bool {
	bus, ok := n.dispatcher.(interface{ Origin() string })
	return !ok || event.Origin == "" || event.Origin == bus.Origin()
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	if !n.local(event) {
		return nil
	}
	payload, _ := event.Payload.(events.TicketCreatedPayload)
	n.logger.Info("ticket created",
		zap.Int64("ticket_id", event.TicketID),
		zap.String("ticket_number", payload.Ticket.Number),
		zap.String("priority", string(payload.Ticket.Priority)))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	if !n.local(event) {
		return nil
	}
	payload, _ := event.Payload.(events.TicketStatusChangedPayload)
	n.logger.Info("ticket status changed",
		zap.Int64("ticket_id", event.TicketID),
		zap.String("from", string(payload.OldStatus)),
		zap.String("to", string(payload.Status)),
		zap.Bool("reopened", payload.Reopened))
	n.sendWebhookNotificationStub(ctx, event)
	if payload.Status.IsTerminal() {
		n.sendEmailNotificationStub(ctx, event)
	}
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	if !n.local(event) {
		return nil
	}
	payload, _ := event.Payload.(events.TicketAssigneeChangedPayload)
	n.logger.Info("ticket assigned",
		zap.Int64("ticket_id", event.TicketID),
		zap.String("assigned_to", payload.AssigneeName))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleMessageAppended(ctx context.Context, event events.Event) error {
	if !n.local(event) {
		return nil
	}
	payload, _ := event.Payload.(events.TicketMessageAppendedPayload)
	n.logger.Info("ticket message appended",
		zap.Int64("ticket_id", event.TicketID),
		zap.Int64("message_id", payload.MessageID),
		zap.String("author", payload.AuthorName))
	n.sendEmailNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("email notification",
		zap.String("from", n.cfg.EmailFrom),
		zap.Int64("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("webhook notification",
		zap.String("url", n.cfg.WebhookURL),
		zap.Int64("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
