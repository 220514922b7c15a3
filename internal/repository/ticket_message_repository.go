package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
)

// TicketMessageRepository manages ticket thread messages.
type TicketMessageRepository interface {
	InsertMessage(ctx context.Context, msg *domain.TicketMessage) error
	QueryMessages(ctx context.Context, ticketID int64) ([]domain.TicketMessage, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) InsertMessage(ctx context.Context, msg *domain.TicketMessage) error {
	const query = `
        INSERT INTO ticket_messages (ticket_id, user_id, message)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.AuthorID,
		msg.Body,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *ticketMessageRepository) QueryMessages(ctx context.Context, ticketID int64) ([]domain.TicketMessage, error) {
	const query = `
        SELECT m.id, m.ticket_id, m.user_id, m.message, m.created_at,
            COALESCE(TRIM(u.first_name || ' ' || u.last_name), ''), COALESCE(u.role, '')
        FROM ticket_messages m
        LEFT JOIN users u ON u.id = m.user_id
        WHERE m.ticket_id=$1
        ORDER BY m.created_at ASC, m.id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketMessage{}
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.AuthorID,
			&msg.Body,
			&msg.CreatedAt,
			&msg.AuthorName,
			&msg.AuthorRole,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
