package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
)

// DetailView is the header of one open ticket.
type DetailView struct {
	mu       sync.Mutex
	ticketID int64
	ticket   domain.Ticket
	seeded   bool
	stale    bool
	pending  []events.Event
}

func NewDetailView(ticketID int64) *DetailView {
	return &DetailView{ticketID: ticketID}
}

func (v *DetailView) EventTypes() []events.EventType {
	return []events.EventType{
		events.EventTicketStatusChanged,
		events.EventTicketPriorityChanged,
		events.EventTicketAssigneeChanged,
	}
}

func (v *DetailView) Load(ctx context.Context, fetcher Fetcher) error {
	v.mu.Lock()
	wasSeeded := v.seeded
	v.seeded = false
	v.mu.Unlock()

	ticket, err := fetcher.GetTicket(ctx, v.ticketID)
	if err != nil {
		v.keepTicket(wasSeeded)
		return err
	}
	v.Seed(ticket)
	return nil
}

func (v *DetailView) Seed(ticket domain.Ticket) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ticket = ticket
	v.seeded = true
	v.stale = false
	pending := v.pending
	v.pending = nil
	for _, event := range pending {
		v.apply(event)
	}
}

// keepTicket restores the previous header after a failed reload, still
// flagged stale.
func (v *DetailView) keepTicket(wasSeeded bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stale = true
	if !wasSeeded || v.seeded {
		return
	}
	v.seeded = true
	pending := v.pending
	v.pending = nil
	for _, event := range pending {
		v.apply(event)
	}
}

func (v *DetailView) Apply(_ context.Context, event events.Event) error {
	if event.TicketID != v.ticketID {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.seeded {
		if len(v.pending) >= maxPending {
			v.pending = v.pending[1:]
			v.stale = true
		}
		v.pending = append(v.pending, event)
		return nil
	}
	v.apply(event)
	return nil
}

func (v *DetailView) apply(event events.Event) {
	switch p := event.Payload.(type) {
	case events.TicketStatusChangedPayload:
		v.patch(p.UpdatedAt, func(t *domain.Ticket) {
			t.Status = p.Status
			t.ClosedAt = copyTime(p.ClosedAt)
		})
	case events.TicketPriorityChangedPayload:
		v.patch(p.UpdatedAt, func(t *domain.Ticket) { t.Priority = p.Priority })
	case events.TicketAssigneeChangedPayload:
		v.patch(p.UpdatedAt, func(t *domain.Ticket) {
			t.AssigneeID = copyID(p.AssigneeID)
			t.AssigneeName = p.AssigneeName
		})
	}
}

func (v *DetailView) patch(updatedAt time.Time, set func(*domain.Ticket)) {
	if !notOlder(updatedAt, v.ticket.UpdatedAt) {
		return
	}
	set(&v.ticket)
	if !updatedAt.IsZero() {
		v.ticket.UpdatedAt = updatedAt
	}
}

// Ticket returns the current header and whether it has been seeded.
func (v *DetailView) Ticket() (domain.Ticket, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t := v.ticket
	t.AssigneeID = copyID(t.AssigneeID)
	t.ClosedAt = copyTime(t.ClosedAt)
	return t, v.seeded
}

func (v *DetailView) MarkStale() {
	v.mu.Lock()
	v.stale = true
	v.mu.Unlock()
}

func (v *DetailView) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stale
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
