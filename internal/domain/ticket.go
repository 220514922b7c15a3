package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "Open"
	TicketStatusInProgress TicketStatus = "In Progress"
	TicketStatusOnHold     TicketStatus = "On Hold"
	TicketStatusResolved   TicketStatus = "Resolved"
	TicketStatusClosed     TicketStatus = "Closed"
	TicketStatusFailed     TicketStatus = "Failed"
)

// TicketStatuses lists every status in legacy id order (1..6).
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusOnHold,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusFailed,
}

// IsTerminal reports whether no further activity is expected on the ticket.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed || s == TicketStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	for _, candidate := range TicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTicketStatus accepts canonical names, lowercase/hyphenated variants
// ("in-progress") and the legacy numeric ids ("5" is Closed).
func ParseTicketStatus(raw string) (TicketStatus, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if id, err := strconv.Atoi(raw); err == nil {
		if id < 1 || id > len(TicketStatuses) {
			return "", false
		}
		return TicketStatuses[id-1], true
	}
	key := normalizeEnum(raw)
	for _, candidate := range TicketStatuses {
		if normalizeEnum(string(candidate)) == key {
			return candidate, true
		}
	}
	return "", false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "Low"
	TicketPriorityMedium TicketPriority = "Medium"
	TicketPriorityHigh   TicketPriority = "High"
	TicketPriorityUrgent TicketPriority = "Urgent"
)

var TicketPriorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityUrgent,
}

// ParseTicketPriority accepts canonical names case-insensitively and legacy ids.
func ParseTicketPriority(raw string) (TicketPriority, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if id, err := strconv.Atoi(raw); err == nil {
		if id < 1 || id > len(TicketPriorities) {
			return "", false
		}
		return TicketPriorities[id-1], true
	}
	key := normalizeEnum(raw)
	for _, candidate := range TicketPriorities {
		if normalizeEnum(string(candidate)) == key {
			return candidate, true
		}
	}
	return "", false
}

// TicketCategory classifies the kind of problem reported.
type TicketCategory string

const (
	TicketCategoryHardware TicketCategory = "Hardware"
	TicketCategorySoftware TicketCategory = "Software"
	TicketCategoryNetwork  TicketCategory = "Network"
	TicketCategoryOther    TicketCategory = "Other"
)

var TicketCategories = []TicketCategory{
	TicketCategoryHardware,
	TicketCategorySoftware,
	TicketCategoryNetwork,
	TicketCategoryOther,
}

func ParseTicketCategory(raw string) (TicketCategory, bool) {
	key := normalizeEnum(raw)
	if key == "" {
		return "", false
	}
	for _, candidate := range TicketCategories {
		if normalizeEnum(string(candidate)) == key {
			return candidate, true
		}
	}
	return "", false
}

func normalizeEnum(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	raw = strings.NewReplacer("-", " ", "_", " ").Replace(raw)
	return strings.Join(strings.Fields(raw), " ")
}

const ticketNumberPrefix = "TKT-"

// FormatTicketNumber renders the human-facing ticket number, e.g. TKT-0000042.
func FormatTicketNumber(n int64) string {
	return fmt.Sprintf("%s%07d", ticketNumberPrefix, n)
}

// ParseTicketNumber extracts the sequence from a TKT-nnnnnnn string.
func ParseTicketNumber(number string) (int64, bool) {
	if !strings.HasPrefix(number, ticketNumberPrefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(number, ticketNumberPrefix), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          int64
	Number      string
	Subject     string
	Description string
	Category    TicketCategory
	Priority    TicketPriority
	Status      TicketStatus
	Department  string
	Branch      string
	CreatedBy   int64
	AssigneeID  *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time

	// Display snapshots joined at read time.
	CreatedByName string
	AssigneeName  string
}

// ApplyStatus moves the ticket to next, keeping closed_at consistent with the
// terminal flag of the new status.
func (t *Ticket) ApplyStatus(next TicketStatus, now time.Time) {
	switch {
	case next.IsTerminal() && t.Status == next && t.ClosedAt != nil:
		// repeat of the same terminal status keeps the original close time
	case next.IsTerminal():
		closed := now
		t.ClosedAt = &closed
	default:
		t.ClosedAt = nil
	}
	t.Status = next
	t.UpdatedAt = now
}
