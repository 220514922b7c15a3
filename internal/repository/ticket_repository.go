package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
)

// TicketFilter captures list parameters.
type TicketFilter struct {
	CreatedBy  *int64
	AssigneeID *int64
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Categories []domain.TicketCategory
	SearchTerm *string
	Limit      int
	Offset     int
}

// Normalized applies the default page size and clamps the offset.
func (f TicketFilter) Normalized() TicketFilter {
	if f.Limit <= 0 {
		f.Limit = 10
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// TicketPage is one page of a filtered ticket query.
type TicketPage struct {
	Items []domain.Ticket
	Total int64
}

// TicketFieldUpdate lists the columns a command writes. Only set fields are
// touched, so concurrent writers of different fields do not overwrite each
// other.
type TicketFieldUpdate struct {
	Status      *domain.TicketStatus
	ClosedAt    *time.Time
	SetClosedAt bool
	Priority    *domain.TicketPriority
	AssigneeID  *int64
	SetAssignee bool
	UpdatedAt   time.Time
}

func (u TicketFieldUpdate) empty() bool {
	return u.Status == nil && u.Priority == nil && !u.SetClosedAt && !u.SetAssignee
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	InsertTicket(ctx context.Context, ticket *domain.Ticket) error
	UpdateTicketFields(ctx context.Context, id int64, update TicketFieldUpdate) error
	GetTicketByID(ctx context.Context, id int64) (*domain.Ticket, error)
	QueryTickets(ctx context.Context, filter TicketFilter) (TicketPage, error)
	GetLatestTicketNumber(ctx context.Context) (int64, error)
	Stats(ctx context.Context, now time.Time) (domain.Stats, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `
        t.id, t.ticket_number, t.subject, t.description, t.category, t.priority, t.status,
        t.department, t.branch, t.created_by, t.assigned_to, t.created_at, t.updated_at, t.closed_at,
        COALESCE(TRIM(creator.first_name || ' ' || creator.last_name), ''),
        COALESCE(TRIM(assignee.first_name || ' ' || assignee.last_name), '')`

const ticketJoins = `
        FROM tickets t
        LEFT JOIN users creator ON creator.id = t.created_by
        LEFT JOIN users assignee ON assignee.id = t.assigned_to`

// ticketNumberLock serializes ticket number assignment across connections.
const ticketNumberLock = 7_310_001

func (r *ticketRepository) InsertTicket(ctx context.Context, ticket *domain.Ticket) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ticketNumberLock); err != nil {
		return fmt.Errorf("lock ticket number: %w", err)
	}
	var latest int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(number_seq), 0) FROM tickets`).Scan(&latest); err != nil {
		return fmt.Errorf("latest ticket number: %w", err)
	}
	next := latest + 1
	ticket.Number = domain.FormatTicketNumber(next)

	const query = `
        INSERT INTO tickets (number_seq, ticket_number, subject, description, category, priority, status,
            department, branch, created_by, assigned_to)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		next,
		ticket.Number,
		ticket.Subject,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.Department,
		ticket.Branch,
		ticket.CreatedBy,
		ticket.AssigneeID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) UpdateTicketFields(ctx context.Context, id int64, update TicketFieldUpdate) error {
	if update.empty() {
		return nil
	}
	sets := []string{}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if update.Status != nil {
		add("status", *update.Status)
	}
	if update.SetClosedAt {
		add("closed_at", update.ClosedAt)
	}
	if update.Priority != nil {
		add("priority", *update.Priority)
	}
	if update.SetAssignee {
		add("assigned_to", update.AssigneeID)
	}
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	add("updated_at", updatedAt)
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE id=$%d`, strings.Join(sets, ", "), len(args))
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetTicketByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ticketJoins + ` WHERE t.id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) QueryTickets(ctx context.Context, filter TicketFilter) (TicketPage, error) {
	filter = filter.Normalized()
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("t.created_by=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("t.assigned_to=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, c := range filter.Categories {
			args = append(args, c)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.category IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(t.subject) LIKE %s OR LOWER(t.ticket_number) LIKE %s)", placeholder, placeholder))
	}
	where := strings.Join(clauses, " AND ")

	var page TicketPage
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets t WHERE `+where, args...).Scan(&page.Total); err != nil {
		return TicketPage{}, err
	}

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY t.created_at DESC, t.id DESC LIMIT %d OFFSET %d`,
		ticketColumns, ticketJoins, where, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return TicketPage{}, err
	}
	defer rows.Close()
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return TicketPage{}, err
		}
		page.Items = append(page.Items, *ticket)
	}
	return page, rows.Err()
}

func (r *ticketRepository) GetLatestTicketNumber(ctx context.Context) (int64, error) {
	var latest int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(number_seq), 0) FROM tickets`).Scan(&latest)
	return latest, err
}

func (r *ticketRepository) Stats(ctx context.Context, now time.Time) (domain.Stats, error) {
	const query = `
        SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE created_at >= $1),
            COUNT(*) FILTER (WHERE created_at >= $1 AND status NOT IN ($2, $3, $4)),
            COUNT(*) FILTER (WHERE status IN ($2, $3)),
            COUNT(*) FILTER (WHERE status = $4),
            COUNT(*) FILTER (WHERE status = $5)
        FROM tickets`
	var stats domain.Stats
	err := r.pool.QueryRow(ctx, query,
		startOfDay(now),
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
		domain.TicketStatusFailed,
		domain.TicketStatusOpen,
	).Scan(
		&stats.TotalCreated,
		&stats.TotalToday,
		&stats.PendingToday,
		&stats.TotalResolved,
		&stats.TotalFailed,
		&stats.Open,
	)
	return stats, err
}

func startOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.Department,
		&ticket.Branch,
		&ticket.CreatedBy,
		&ticket.AssigneeID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
		&ticket.CreatedByName,
		&ticket.AssigneeName,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
