package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/repository"
)

const (
	directoryTTL             = 5 * time.Minute
	directoryCleanupInterval = 10 * time.Minute
)

// Directory resolves user ids to display snapshots. Lookups are cached
// briefly; names embedded in events may therefore lag a profile edit.
type Directory struct {
	users  repository.UserRepository
	cache  *gocache.Cache
	logger *zap.Logger
}

// NewDirectory wraps the user repository with a cache.
func NewDirectory(users repository.UserRepository, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		users:  users,
		cache:  gocache.New(directoryTTL, directoryCleanupInterval),
		logger: logger.With(zap.String("component", "directory")),
	}
}

// Lookup returns the user for id. The second result is false when the user
// does not exist or the directory is unavailable.
func (d *Directory) Lookup(ctx context.Context, id int64) (domain.User, bool) {
	key := strconv.FormatInt(id, 10)
	if cached, found := d.cache.Get(key); found {
		if user, ok := cached.(domain.User); ok {
			return user, true
		}
	}
	user, err := d.users.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			d.logger.Warn("user lookup failed", zap.Int64("user_id", id), zap.Error(err))
		}
		return domain.User{}, false
	}
	d.cache.SetDefault(key, *user)
	return *user, true
}

// AssigneeLabel returns the assignee display name, or the unassigned label
// when id is nil or unknown.
func (d *Directory) AssigneeLabel(ctx context.Context, id *int64) string {
	if id == nil {
		return domain.UnassignedLabel
	}
	user, ok := d.Lookup(ctx, *id)
	if !ok || user.DisplayName() == "" {
		return domain.UnassignedLabel
	}
	return user.DisplayName()
}

// Author returns the display snapshot for a message author, falling back to
// the principal's own claims.
func (d *Directory) Author(ctx context.Context, p domain.Principal) (string, domain.UserRole) {
	if user, ok := d.Lookup(ctx, p.UserID); ok {
		return user.DisplayName(), user.Role
	}
	return p.Name, p.Role
}

// SupportUsers lists users who can be assigned tickets.
func (d *Directory) SupportUsers(ctx context.Context) ([]domain.User, error) {
	return d.users.ListByRoles(ctx, domain.UserRoleTechSupport, domain.UserRoleAdmin)
}

// Invalidate drops a cached entry.
func (d *Directory) Invalidate(id int64) {
	d.cache.Delete(strconv.FormatInt(id, 10))
}
