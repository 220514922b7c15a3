package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
)

// UserRepository is the read side of the user directory.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	ListByRoles(ctx context.Context, roles ...domain.UserRole) ([]domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, employee_id, first_name, last_name, email, role, department, branch, active, created_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (employee_id, first_name, last_name, email, role, department, branch, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`

	return r.pool.QueryRow(ctx, query,
		user.EmployeeID,
		user.FirstName,
		user.LastName,
		user.Email,
		user.Role,
		user.Department,
		user.Branch,
		user.Active,
	).Scan(&user.ID, &user.CreatedAt)
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepository) ListByRoles(ctx context.Context, roles ...domain.UserRole) ([]domain.User, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE active AND role = ANY($1) ORDER BY first_name, last_name`
	rows, err := r.pool.Query(ctx, query, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.EmployeeID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Role,
		&user.Department,
		&user.Branch,
		&user.Active,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
