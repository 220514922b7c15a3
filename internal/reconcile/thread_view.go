package reconcile

import (
	"context"
	"sort"
	"sync"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
)

// ThreadView is the message thread of one open ticket, kept in
// (created_at, id) order with message ids as the dedup key.
type ThreadView struct {
	mu       sync.Mutex
	ticketID int64
	messages []domain.TicketMessage
	ids      map[int64]struct{}
	seeded   bool
	stale    bool
	pending  []domain.TicketMessage
}

// NewThreadView creates an unseeded thread for ticketID.
func NewThreadView(ticketID int64) *ThreadView {
	return &ThreadView{ticketID: ticketID, ids: make(map[int64]struct{})}
}

func (v *ThreadView) TicketID() int64 {
	return v.ticketID
}

func (v *ThreadView) EventTypes() []events.EventType {
	return []events.EventType{events.EventTicketMessageAppended}
}

// Load fetches the full thread once and seeds the view.
func (v *ThreadView) Load(ctx context.Context, fetcher Fetcher) error {
	v.mu.Lock()
	wasSeeded := v.seeded
	v.seeded = false
	v.mu.Unlock()

	msgs, err := fetcher.ListMessages(ctx, v.ticketID)
	if err != nil {
		v.keepThread(wasSeeded)
		return err
	}
	v.Seed(msgs)
	return nil
}

// Seed replaces the thread with fetched messages and merges anything that
// arrived live before the fetch completed.
func (v *ThreadView) Seed(msgs []domain.TicketMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.messages = make([]domain.TicketMessage, 0, len(msgs)+len(v.pending))
	v.ids = make(map[int64]struct{}, len(msgs)+len(v.pending))
	for _, m := range msgs {
		v.insert(m)
	}
	for _, m := range v.pending {
		v.insert(m)
	}
	v.pending = nil
	v.seeded = true
	v.stale = false
}

// keepThread restores the previous messages after a failed reload, still
// flagged stale.
func (v *ThreadView) keepThread(wasSeeded bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stale = true
	if !wasSeeded || v.seeded {
		return
	}
	v.seeded = true
	for _, m := range v.pending {
		v.insert(m)
	}
	v.pending = nil
}

// Apply merges a messageAppended event. Events for other tickets are
// ignored.
func (v *ThreadView) Apply(_ context.Context, event events.Event) error {
	p, ok := event.Payload.(events.TicketMessageAppendedPayload)
	if !ok || p.TicketID != v.ticketID {
		return nil
	}
	v.Add(events.MessageFromPayload(p))
	return nil
}

// Add merges a message known from elsewhere, e.g. the response to the
// client's own post. A later event for the same id is a no-op.
func (v *ThreadView) Add(msg domain.TicketMessage) {
	if msg.TicketID != v.ticketID {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.seeded {
		if len(v.pending) >= maxPending {
			v.pending = v.pending[1:]
			v.stale = true
		}
		v.pending = append(v.pending, msg)
		return
	}
	v.insert(msg)
}

func (v *ThreadView) insert(msg domain.TicketMessage) {
	if _, dup := v.ids[msg.ID]; dup {
		return
	}
	v.ids[msg.ID] = struct{}{}

	// Appends almost always land at the tail.
	n := len(v.messages)
	if n == 0 || domain.MessageBefore(v.messages[n-1], msg) {
		v.messages = append(v.messages, msg)
		return
	}
	i := sort.Search(n, func(i int) bool { return domain.MessageBefore(msg, v.messages[i]) })
	v.messages = append(v.messages, domain.TicketMessage{})
	copy(v.messages[i+1:], v.messages[i:])
	v.messages[i] = msg
}

// Messages returns a copy of the thread in display order.
func (v *ThreadView) Messages() []domain.TicketMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.TicketMessage(nil), v.messages...)
}

func (v *ThreadView) Seeded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.seeded
}

func (v *ThreadView) MarkStale() {
	v.mu.Lock()
	v.stale = true
	v.mu.Unlock()
}

func (v *ThreadView) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stale
}
