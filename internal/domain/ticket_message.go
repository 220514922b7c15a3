package domain

import (
	"sort"
	"time"
)

// TicketMessage captures one entry of a ticket conversation. Messages are
// append-only.
type TicketMessage struct {
	ID        int64
	TicketID  int64
	AuthorID  int64
	Body      string
	CreatedAt time.Time

	// Author display snapshot; may go stale if the user record changes.
	AuthorName string
	AuthorRole UserRole
}

// MessageBefore orders messages by creation time, ties broken by id.
func MessageBefore(a, b TicketMessage) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortMessages sorts in thread order.
func SortMessages(msgs []TicketMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return MessageBefore(msgs[i], msgs[j])
	})
}
