package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
)

// MemoryStore is a process-local store used when no database is configured
// and in tests. Missing rows report pgx.ErrNoRows like the Postgres
// repositories do.
type MemoryStore struct {
	Tickets  TicketRepository
	Messages TicketMessageRepository
	Users    UserRepository
	History  TicketHistoryRepository

	state *memoryState
}

type memoryState struct {
	mu       sync.RWMutex
	now      func() time.Time
	tickets  map[int64]*ticketRow
	messages map[int64][]domain.TicketMessage
	users    map[int64]domain.User
	history  map[int64][]domain.TicketHistory

	lastTicketID  int64
	lastNumber    int64
	lastMessageID int64
	lastUserID    int64
	lastHistoryID int64
}

type ticketRow struct {
	ticket domain.Ticket
	seq    int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	state := &memoryState{
		now:      func() time.Time { return time.Now().UTC() },
		tickets:  map[int64]*ticketRow{},
		messages: map[int64][]domain.TicketMessage{},
		users:    map[int64]domain.User{},
		history:  map[int64][]domain.TicketHistory{},
	}
	return &MemoryStore{
		Tickets:  memoryTickets{state},
		Messages: memoryMessages{state},
		Users:    memoryUsers{state},
		History:  memoryHistory{state},
		state:    state,
	}
}

// SetClock overrides the timestamp source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.now = now
}

func (st *memoryState) displayName(id int64) string {
	if u, ok := st.users[id]; ok {
		return u.DisplayName()
	}
	return ""
}

func (st *memoryState) hydrate(row *ticketRow) domain.Ticket {
	t := row.ticket
	t.CreatedByName = st.displayName(t.CreatedBy)
	t.AssigneeName = ""
	if t.AssigneeID != nil {
		id := *t.AssigneeID
		t.AssigneeID = &id
		t.AssigneeName = st.displayName(id)
	}
	if t.ClosedAt != nil {
		closed := *t.ClosedAt
		t.ClosedAt = &closed
	}
	return t
}

type memoryTickets struct{ st *memoryState }

func (m memoryTickets) InsertTicket(_ context.Context, ticket *domain.Ticket) error {
	st := m.st
	st.mu.Lock()
	defer st.mu.Unlock()

	st.lastTicketID++
	st.lastNumber++
	now := st.now()
	ticket.ID = st.lastTicketID
	ticket.Number = domain.FormatTicketNumber(st.lastNumber)
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	row := &ticketRow{ticket: *ticket, seq: st.lastNumber}
	st.tickets[ticket.ID] = row
	*ticket = st.hydrate(row)
	return nil
}

func (m memoryTickets) UpdateTicketFields(_ context.Context, id int64, update TicketFieldUpdate) error {
	st := m.st
	st.mu.Lock()
	defer st.mu.Unlock()

	row, ok := st.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if update.empty() {
		return nil
	}
	t := &row.ticket
	if update.Status != nil {
		t.Status = *update.Status
	}
	if update.SetClosedAt {
		t.ClosedAt = update.ClosedAt
	}
	if update.Priority != nil {
		t.Priority = *update.Priority
	}
	if update.SetAssignee {
		t.AssigneeID = update.AssigneeID
	}
	t.UpdatedAt = update.UpdatedAt
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = st.now()
	}
	return nil
}

func (m memoryTickets) GetTicketByID(_ context.Context, id int64) (*domain.Ticket, error) {
	st := m.st
	st.mu.RLock()
	defer st.mu.RUnlock()

	row, ok := st.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	t := st.hydrate(row)
	return &t, nil
}

func (m memoryTickets) QueryTickets(_ context.Context, filter TicketFilter) (TicketPage, error) {
	filter = filter.Normalized()
	st := m.st
	st.mu.RLock()
	defer st.mu.RUnlock()

	matched := []domain.Ticket{}
	for _, row := range st.tickets {
		if !matchesFilter(row.ticket, filter) {
			continue
		}
		matched = append(matched, st.hydrate(row))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	page := TicketPage{Total: int64(len(matched)), Items: []domain.Ticket{}}
	if filter.Offset < len(matched) {
		end := filter.Offset + filter.Limit
		if end > len(matched) {
			end = len(matched)
		}
		page.Items = matched[filter.Offset:end]
	}
	return page, nil
}

func matchesFilter(t domain.Ticket, f TicketFilter) bool {
	if f.CreatedBy != nil && t.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, t.Priority) {
		return false
	}
	if len(f.Categories) > 0 && !contains(f.Categories, t.Category) {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" &&
			!strings.Contains(strings.ToLower(t.Subject), term) &&
			!strings.Contains(strings.ToLower(t.Number), term) {
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

func (m memoryTickets) GetLatestTicketNumber(context.Context) (int64, error) {
	m.st.mu.RLock()
	defer m.st.mu.RUnlock()
	return m.st.lastNumber, nil
}

func (m memoryTickets) Stats(_ context.Context, now time.Time) (domain.Stats, error) {
	st := m.st
	st.mu.RLock()
	defer st.mu.RUnlock()

	today := startOfDay(now)
	var stats domain.Stats
	for _, row := range st.tickets {
		t := row.ticket
		stats.TotalCreated++
		createdToday := !t.CreatedAt.Before(today)
		if createdToday {
			stats.TotalToday++
		}
		switch t.Status {
		case domain.TicketStatusResolved, domain.TicketStatusClosed:
			stats.TotalResolved++
		case domain.TicketStatusFailed:
			stats.TotalFailed++
		default:
			if createdToday {
				stats.PendingToday++
			}
		}
		if t.Status == domain.TicketStatusOpen {
			stats.Open++
		}
	}
	return stats, nil
}

type memoryMessages struct{ st *memoryState }

func (m memoryMessages) InsertMessage(_ context.Context, msg *domain.TicketMessage) error {
	st := m.st
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.tickets[msg.TicketID]; !ok {
		return pgx.ErrNoRows
	}
	st.lastMessageID++
	msg.ID = st.lastMessageID
	msg.CreatedAt = st.now()
	if u, ok := st.users[msg.AuthorID]; ok {
		msg.AuthorName = u.DisplayName()
		msg.AuthorRole = u.Role
	}
	st.messages[msg.TicketID] = append(st.messages[msg.TicketID], *msg)
	return nil
}

func (m memoryMessages) QueryMessages(_ context.Context, ticketID int64) ([]domain.TicketMessage, error) {
	st := m.st
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := append([]domain.TicketMessage{}, st.messages[ticketID]...)
	domain.SortMessages(result)
	return result, nil
}

type memoryUsers struct{ st *memoryState }

func (m memoryUsers) Create(_ context.Context, user *domain.User) error {
	st := m.st
	st.mu.Lock()
	defer st.mu.Unlock()

	if user.ID == 0 {
		st.lastUserID++
		user.ID = st.lastUserID
	} else if user.ID > st.lastUserID {
		st.lastUserID = user.ID
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = st.now()
	}
	st.users[user.ID] = *user
	return nil
}

func (m memoryUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	m.st.mu.RLock()
	defer m.st.mu.RUnlock()
	u, ok := m.st.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (m memoryUsers) ListByRoles(_ context.Context, roles ...domain.UserRole) ([]domain.User, error) {
	m.st.mu.RLock()
	defer m.st.mu.RUnlock()

	result := []domain.User{}
	for _, u := range m.st.users {
		if u.Active && contains(roles, u.Role) {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DisplayName() < result[j].DisplayName()
	})
	return result, nil
}

type memoryHistory struct{ st *memoryState }

func (m memoryHistory) Create(_ context.Context, history *domain.TicketHistory) error {
	st := m.st
	st.mu.Lock()
	defer st.mu.Unlock()

	st.lastHistoryID++
	history.ID = st.lastHistoryID
	history.CreatedAt = st.now()
	st.history[history.TicketID] = append(st.history[history.TicketID], *history)
	return nil
}

func (m memoryHistory) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	m.st.mu.RLock()
	defer m.st.mu.RUnlock()
	return append([]domain.TicketHistory{}, m.st.history[ticketID]...), nil
}
