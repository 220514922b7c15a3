package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
)

// maxPending bounds the events held while a view waits for its seed.
const maxPending = 1024

// ListView is one locally materialized page of tickets.
//
// New tickets are prepended only on page 1; deeper pages would shift under
// offset pagination, so they wait for the next fetch. Field patches touch
// only the matching row and never re-sort or re-filter the page.
type ListView struct {
	mu      sync.Mutex
	query   ListQuery
	rows    []Row
	total   int64
	seeded  bool
	stale   bool
	pending []events.Event
}

// NewListView creates an empty, unseeded view for query.
func NewListView(query ListQuery) *ListView {
	return &ListView{query: query.Normalized()}
}

// Query returns the page the view shows.
func (v *ListView) Query() ListQuery {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query
}

// SetQuery switches the view to another page or filter. The view is
// unseeded until the next Seed or Load.
func (v *ListView) SetQuery(query ListQuery) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query = query.Normalized()
	v.seeded = false
	v.pending = nil
}

func (v *ListView) EventTypes() []events.EventType {
	return events.TicketMutationTypes
}

// Load fetches the current page and seeds the view with it.
func (v *ListView) Load(ctx context.Context, fetcher Fetcher) error {
	v.mu.Lock()
	wasSeeded := v.seeded
	v.seeded = false
	query := v.query
	v.mu.Unlock()

	page, err := fetcher.ListTickets(ctx, query)
	if err != nil {
		v.keepRows(wasSeeded)
		return err
	}
	v.Seed(page.Rows, page.Total)
	return nil
}

// Seed replaces the rows with a fetched page, then replays events that
// arrived while the fetch was in flight.
func (v *ListView) Seed(rows []Row, total int64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rows = append(make([]Row, 0, len(rows)), rows...)
	if len(v.rows) > v.query.PageSize {
		v.rows = v.rows[:v.query.PageSize]
	}
	v.total = total
	v.seeded = true
	v.stale = false

	pending := v.pending
	v.pending = nil
	for _, event := range pending {
		v.apply(event)
	}
}

// keepRows puts the previous rows back in service after a failed reload.
// They keep taking patches but stay stale until a reload succeeds.
func (v *ListView) keepRows(wasSeeded bool) {
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

func (v *ListView) Apply(_ context.Context, event events.Event) error {
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

func (v *ListView) apply(event events.Event) {
	switch p := event.Payload.(type) {
	case events.TicketCreatedPayload:
		v.insert(p.Ticket)
	case events.TicketStatusChangedPayload:
		v.patch(event.TicketID, p.UpdatedAt, func(r *Row) { r.Status = p.Status })
	case events.TicketPriorityChangedPayload:
		v.patch(event.TicketID, p.UpdatedAt, func(r *Row) { r.Priority = p.Priority })
	case events.TicketAssigneeChangedPayload:
		v.patch(event.TicketID, p.UpdatedAt, func(r *Row) {
			r.AssigneeID = copyID(p.AssigneeID)
			r.AssigneeName = p.AssigneeName
		})
	}
}

func (v *ListView) insert(row Row) {
	if v.query.Page != 1 || v.indexOf(row.ID) >= 0 || !v.query.Matches(row) {
		return
	}
	v.rows = append([]Row{row}, v.rows...)
	if len(v.rows) > v.query.PageSize {
		v.rows = v.rows[:v.query.PageSize]
	}
	v.total++
}

func (v *ListView) patch(id int64, updatedAt time.Time, set func(*Row)) {
	i := v.indexOf(id)
	if i < 0 {
		return
	}
	row := &v.rows[i]
	if !notOlder(updatedAt, row.UpdatedAt) {
		return
	}
	set(row)
	if !updatedAt.IsZero() {
		row.UpdatedAt = updatedAt
	}
}

func (v *ListView) indexOf(id int64) int {
	for i := range v.rows {
		if v.rows[i].ID == id {
			return i
		}
	}
	return -1
}

// Rows returns a copy of the displayed rows.
func (v *ListView) Rows() []Row {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Row(nil), v.rows...)
}

// Total is the server-side match count adjusted by local inserts.
func (v *ListView) Total() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.total
}

func (v *ListView) MarkStale() {
	v.mu.Lock()
	v.stale = true
	v.mu.Unlock()
}

// Stale reports whether the rows may have missed events.
func (v *ListView) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stale
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
