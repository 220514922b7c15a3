package dto

import (
	"time"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	Department  string `json:"department"`
	Branch      string `json:"branch"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status string `json:"status"`
}

// ChangePriorityRequest payload.
type ChangePriorityRequest struct {
	Priority string `json:"priority"`
}

// AssignRequest payload. A null assignee_id clears the assignment.
type AssignRequest struct {
	AssigneeID *int64 `json:"assignee_id"`
}

// TicketRow is the list row shape, identical to the ticket.created payload
// so pushed rows and fetched rows can be mixed in one view.
type TicketRow = events.TicketSummary

// TicketListResponse is one page of tickets.
type TicketListResponse struct {
	Items      []TicketRow `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// TicketRows converts domain tickets into list rows.
func TicketRows(tickets []domain.Ticket) []TicketRow {
	rows := make([]TicketRow, 0, len(tickets))
	for i := range tickets {
		rows = append(rows, events.SummaryFromTicket(&tickets[i]))
	}
	return rows
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID            int64                 `json:"ticket_id"`
	Number        string                `json:"ticket_number"`
	Subject       string                `json:"subject"`
	Description   string                `json:"description"`
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
	ClosedAt      *time.Time            `json:"closed_at"`
}

// TicketDetailFromDomain maps a ticket to its detail response.
func TicketDetailFromDomain(t *domain.Ticket) TicketDetailResponse {
	assignee := t.AssigneeName
	if assignee == "" {
		assignee = domain.UnassignedLabel
	}
	return TicketDetailResponse{
		ID:            t.ID,
		Number:        t.Number,
		Subject:       t.Subject,
		Description:   t.Description,
		Category:      t.Category,
		Priority:      t.Priority,
		Status:        t.Status,
		Department:    t.Department,
		Branch:        t.Branch,
		CreatedBy:     t.CreatedBy,
		CreatedByName: t.CreatedByName,
		AssigneeID:    t.AssigneeID,
		AssigneeName:  assignee,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		ClosedAt:      t.ClosedAt,
	}
}

// Domain converts the response back into a ticket.
func (r TicketDetailResponse) Domain() domain.Ticket {
	return domain.Ticket{
		ID:            r.ID,
		Number:        r.Number,
		Subject:       r.Subject,
		Description:   r.Description,
		Category:      r.Category,
		Priority:      r.Priority,
		Status:        r.Status,
		Department:    r.Department,
		Branch:        r.Branch,
		CreatedBy:     r.CreatedBy,
		AssigneeID:    r.AssigneeID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		ClosedAt:      r.ClosedAt,
		CreatedByName: r.CreatedByName,
		AssigneeName:  r.AssigneeName,
	}
}

// LatestNumberResponse reports the last issued ticket number, empty when
// no ticket exists yet.
type LatestNumberResponse struct {
	TicketNumber string `json:"ticket_number"`
}

// HistoryResponse is one audit trail entry.
type HistoryResponse struct {
	ID          int64                   `json:"id"`
	TicketID    int64                   `json:"ticket_id"`
	ChangedByID int64                   `json:"changed_by"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	OldValue    map[string]any          `json:"old_value"`
	NewValue    map[string]any          `json:"new_value"`
	CreatedAt   time.Time               `json:"created_at"`
}

// HistoryFromDomain maps audit entries.
func HistoryFromDomain(entries []domain.TicketHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(entries))
	for _, h := range entries {
		out = append(out, HistoryResponse{
			ID:          h.ID,
			TicketID:    h.TicketID,
			ChangedByID: h.ChangedByID,
			ChangeType:  h.ChangeType,
			OldValue:    h.OldValue,
			NewValue:    h.NewValue,
			CreatedAt:   h.CreatedAt,
		})
	}
	return out
}

// EventsResponse answers a replay request.
type EventsResponse struct {
	Events  []events.Event `json:"events"`
	LastSeq uint64         `json:"last_seq"`
}
