package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
)

// EventType enumerates supported event identifiers. The string values are
// the wire names seen by connected clients.
type EventType string

const (
	EventTicketCreated         EventType = "ticket.created"
	EventTicketStatusChanged   EventType = "ticket.statusChanged"
	EventTicketPriorityChanged EventType = "ticket.priorityChanged"
	EventTicketAssigneeChanged EventType = "ticket.assigneeChanged"
	EventTicketMessageAppended EventType = "ticket.messageAppended"
	EventStatsChanged          EventType = "stats.changed"
)

// AllEventTypes lists every event kind.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketAssigneeChanged,
	EventTicketMessageAppended,
	EventStatsChanged,
}

// TicketMutationTypes are the kinds that change the aggregate dashboard.
var TicketMutationTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketAssigneeChanged,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID int64           `json:"user_id"`
	Name   string          `json:"name,omitempty"`
	Role   domain.UserRole `json:"role,omitempty"`
}

// ActorFromPrincipal copies the caller identity into an event actor.
func ActorFromPrincipal(p domain.Principal) Actor {
	return Actor{UserID: p.UserID, Name: p.Name, Role: p.Role}
}

// Event is a transient mutation notification. Events are a cache
// invalidation hint; the ticket store stays the source of truth.
type Event struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	TicketID  int64     `json:"ticket_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketSummary is the list-row shape of a ticket. Display names are
// snapshots taken when the row was produced.
type TicketSummary struct {
	ID            int64                 `json:"ticket_id"`
	Number        string                `json:"ticket_number"`
	Subject       string                `json:"subject"`
	Category      domain.TicketCategory `json:"category"`
	Priority      domain.TicketPriority `json:"priority"`
	Status        domain.TicketStatus   `json:"status"`
	Department    string                `json:"department,omitempty"`
	Branch        string                `json:"branch,omitempty"`
	CreatedBy     int64                 `json:"created_by"`
	CreatedByName string                `json:"created_by_name,omitempty"`
	AssigneeID    *int64                `json:"assignee_id"`
	AssigneeName  string                `json:"assigned_to"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// SummaryFromTicket builds a list row from a domain ticket.
func SummaryFromTicket(t *domain.Ticket) TicketSummary {
	assigneeName := t.AssigneeName
	if assigneeName == "" {
		assigneeName = domain.UnassignedLabel
	}
	return TicketSummary{
		ID:            t.ID,
		Number:        t.Number,
		Subject:       t.Subject,
		Category:      t.Category,
		Priority:      t.Priority,
		Status:        t.Status,
		Department:    t.Department,
		Branch:        t.Branch,
		CreatedBy:     t.CreatedBy,
		CreatedByName: t.CreatedByName,
		AssigneeID:    t.AssigneeID,
		AssigneeName:  assigneeName,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Ticket TicketSummary `json:"ticket"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	Status    domain.TicketStatus `json:"status"`
	ClosedAt  *time.Time          `json:"closed_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Reopened  bool                `json:"reopened,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	Priority    domain.TicketPriority `json:"priority"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketAssigneeChangedPayload payload. AssigneeName is a snapshot of the
// directory at publish time.
type TicketAssigneeChangedPayload struct {
	OldAssigneeID *int64    `json:"old_assignee_id"`
	AssigneeID    *int64    `json:"assignee_id"`
	AssigneeName  string    `json:"assigned_to"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TicketMessageAppendedPayload payload. Author fields are snapshots.
type TicketMessageAppendedPayload struct {
	MessageID  int64           `json:"message_id"`
	TicketID   int64           `json:"ticket_id"`
	AuthorID   int64           `json:"user_id"`
	AuthorName string          `json:"author_name"`
	AuthorRole domain.UserRole `json:"sender_role"`
	Body       string          `json:"message"`
	CreatedAt  time.Time       `json:"created_at"`
}

// StatsChangedPayload carries a full dashboard snapshot.
type StatsChangedPayload struct {
	Stats domain.Stats `json:"stats"`
}

// MessageFromPayload rebuilds the thread entry carried by an append event.
func MessageFromPayload(p TicketMessageAppendedPayload) domain.TicketMessage {
	return domain.TicketMessage{
		ID:         p.MessageID,
		TicketID:   p.TicketID,
		AuthorID:   p.AuthorID,
		Body:       p.Body,
		CreatedAt:  p.CreatedAt,
		AuthorName: p.AuthorName,
		AuthorRole: p.AuthorRole,
	}
}

// UnmarshalJSON decodes the payload into the concrete struct for the event
// type so handlers can type-assert on it.
func (e *Event) UnmarshalJSON(data []byte) error {
	type envelope Event
	var raw struct {
		envelope
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event(raw.envelope)
	e.Payload = nil
	if len(raw.Payload) == 0 || string(raw.Payload) == "null" {
		return nil
	}

	var err error
	switch e.Type {
	case EventTicketCreated:
		var p TicketCreatedPayload
		err = json.Unmarshal(raw.Payload, &p)
		e.Payload = p
	case EventTicketStatusChanged:
		var p TicketStatusChangedPayload
		err = json.Unmarshal(raw.Payload, &p)
		e.Payload = p
	case EventTicketPriorityChanged:
		var p TicketPriorityChangedPayload
		err = json.Unmarshal(raw.Payload, &p)
		e.Payload = p
	case EventTicketAssigneeChanged:
		var p TicketAssigneeChangedPayload
		err = json.Unmarshal(raw.Payload, &p)
		e.Payload = p
	case EventTicketMessageAppended:
		var p TicketMessageAppendedPayload
		err = json.Unmarshal(raw.Payload, &p)
		e.Payload = p
	case EventStatsChanged:
		var p StatsChangedPayload
		err = json.Unmarshal(raw.Payload, &p)
		e.Payload = p
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
