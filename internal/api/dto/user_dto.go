package dto

import (
	"time"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
)

// UserResponse is the public directory view of a user.
type UserResponse struct {
	ID         int64           `json:"user_id"`
	Name       string          `json:"name"`
	Role       domain.UserRole `json:"role"`
	Department string          `json:"department,omitempty"`
}

// UsersFromDomain maps directory entries.
func UsersFromDomain(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, UserResponse{
			ID:         u.ID,
			Name:       u.DisplayName(),
			Role:       u.Role,
			Department: u.Department,
		})
	}
	return out
}

// AuthResponse carries an issued access token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
