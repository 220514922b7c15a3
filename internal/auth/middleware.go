package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/repository"
	apperrors "github.com/19niel/Ultra-MIS-Ticketing-System/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Resolver turns a bearer token into the caller identity. When a user
// repository is configured the user must exist and be active, and the
// directory name and role win over the token's.
type Resolver struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewResolver constructs a resolver. users may be nil.
func NewResolver(tokens *TokenManager, users repository.UserRepository) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

// Resolve validates token and loads the principal.
func (r *Resolver) Resolve(ctx context.Context, token string) (domain.Principal, error) {
	claims, err := r.tokens.ParseToken(token)
	if err != nil {
		return domain.Principal{}, apperrors.NewUnauthorized("invalid token")
	}
	principal, err := claims.Principal()
	if err != nil {
		return domain.Principal{}, apperrors.NewUnauthorized(err.Error())
	}
	if r.users == nil {
		return principal, nil
	}

	user, err := r.users.GetByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Principal{}, apperrors.NewUnauthorized("user not found")
		}
		return domain.Principal{}, apperrors.MapError(err)
	}
	if !user.Active {
		return domain.Principal{}, apperrors.NewUnauthorized("user inactive")
	}
	principal.Name = user.DisplayName()
	principal.Role = user.Role
	return principal, nil
}

// Handle enforces authentication for protected routes.
func (r *Resolver) Handle(c *fiber.Ctx) error {
	token, err := bearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	principal, err := r.Resolve(c.UserContext(), token)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// Authenticate resolves the caller of a plain HTTP request, e.g. a
// websocket upgrade. Browsers cannot set headers on upgrades, so a token
// query parameter is accepted as well.
func (r *Resolver) Authenticate(req *http.Request) (domain.Principal, error) {
	token := req.URL.Query().Get("token")
	if token == "" {
		var err error
		if token, err = bearerToken(req.Header.Get("Authorization")); err != nil {
			return domain.Principal{}, err
		}
	}
	return r.Resolve(req.Context(), token)
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// WithPrincipal stores p on the request. Used by tests and by trusted
// front proxies that authenticate upstream.
func WithPrincipal(c *fiber.Ctx, p domain.Principal) {
	c.Locals(principalKey, p)
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (domain.Principal, bool) {
	principal, ok := c.Locals(principalKey).(domain.Principal)
	return principal, ok
}
