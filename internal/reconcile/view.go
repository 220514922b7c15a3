// Package reconcile keeps client-side materialized views of tickets,
// threads and dashboard stats consistent with the pushed event stream.
// Events are treated as cache invalidation hints; whenever continuity is
// lost the views are reloaded from the REST API.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
)

// View is a client-side materialization fed by events.
type View interface {
	// EventTypes lists the kinds the view consumes.
	EventTypes() []events.EventType
	// Apply merges one event. It must be idempotent.
	Apply(ctx context.Context, event events.Event) error
}

// Loader is a view that can (re)seed itself from the ticket store.
type Loader interface {
	Load(ctx context.Context, fetcher Fetcher) error
}

// Staler is a view that can be flagged as out of date.
type Staler interface {
	MarkStale()
}

// Fetcher re-reads authoritative state.
type Fetcher interface {
	ListTickets(ctx context.Context, query ListQuery) (TicketPage, error)
	GetTicket(ctx context.Context, id int64) (domain.Ticket, error)
	ListMessages(ctx context.Context, ticketID int64) ([]domain.TicketMessage, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

// Row is one list entry.
type Row = events.TicketSummary

// TicketPage is one fetched page of rows.
type TicketPage struct {
	Rows  []Row
	Total int64
}

// ListQuery selects a page of tickets.
type ListQuery struct {
	Page         int
	PageSize     int
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	Categories   []domain.TicketCategory
	Search       string
	AssignedToMe bool

	// CallerID and CreatedBy mirror the scoping the server applies from the
	// caller's identity. They are not sent as query parameters.
	CallerID  int64
	CreatedBy *int64
}

// ForPrincipal scopes the query to what p may list: non-support roles only
// see their own tickets.
func (q ListQuery) ForPrincipal(p domain.Principal) ListQuery {
	q.CallerID = p.UserID
	q.CreatedBy = nil
	if !p.Role.IsSupport() {
		owner := p.UserID
		q.CreatedBy = &owner
	}
	return q
}

// Normalized fills paging defaults.
func (q ListQuery) Normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 10
	}
	return q
}

// Matches reports whether a newly created row belongs in the query's result
// set. Only the filters decidable from the row itself are checked; the
// server applies the rest on the next fetch.
func (q ListQuery) Matches(row Row) bool {
	if len(q.Statuses) > 0 && !contains(q.Statuses, row.Status) {
		return false
	}
	if len(q.Priorities) > 0 && !contains(q.Priorities, row.Priority) {
		return false
	}
	if len(q.Categories) > 0 && !contains(q.Categories, row.Category) {
		return false
	}
	if q.CreatedBy != nil && row.CreatedBy != *q.CreatedBy {
		return false
	}
	if q.AssignedToMe && (row.AssigneeID == nil || *row.AssigneeID != q.CallerID) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		if !strings.Contains(strings.ToLower(row.Subject), term) &&
			!strings.Contains(strings.ToLower(row.Number), term) {
			return false
		}
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// notOlder reports whether a patch stamped at ts may overwrite state last
// stamped at current. Equal stamps are accepted so a replayed patch is a
// no-op rather than a rejection.
func notOlder(ts, current time.Time) bool {
	return ts.IsZero() || !ts.Before(current)
}
