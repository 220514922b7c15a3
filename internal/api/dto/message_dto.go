package dto

import (
	"time"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
)

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Message string `json:"message"`
}

// MessageResponse represents one thread entry with its author snapshot.
type MessageResponse struct {
	ID         int64           `json:"message_id"`
	TicketID   int64           `json:"ticket_id"`
	AuthorID   int64           `json:"user_id"`
	AuthorName string          `json:"author_name"`
	AuthorRole domain.UserRole `json:"sender_role"`
	Body       string          `json:"message"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MessageFromDomain maps a message.
func MessageFromDomain(m domain.TicketMessage) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		TicketID:   m.TicketID,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		AuthorRole: m.AuthorRole,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}

// MessagesFromDomain maps a thread.
func MessagesFromDomain(msgs []domain.TicketMessage) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageFromDomain(m))
	}
	return out
}

// Domain converts the response back into a message.
func (r MessageResponse) Domain() domain.TicketMessage {
	return domain.TicketMessage{
		ID:         r.ID,
		TicketID:   r.TicketID,
		AuthorID:   r.AuthorID,
		Body:       r.Body,
		CreatedAt:  r.CreatedAt,
		AuthorName: r.AuthorName,
		AuthorRole: r.AuthorRole,
	}
}
