package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/contentdb/internal/services"
	"github.com/localnerve/contentdb/internal/types"
)

// Identity headers used when no authorizer is configured. The service must
// then sit behind a gateway that sets them.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserRoles = "X-User-Roles"
	HeaderSessionID = "X-Session-Id"

	sessionCookie = "cookie_session"
	actorKey      = "actor"
)

// SessionValidator resolves an authorizer session cookie to a user
type SessionValidator interface {
	Validate(requestProtocol, requestHost, cookie string) (*services.SessionUser, error)
}

// Identify resolves the caller and stores it for ActorFrom. With a validator
// the cookie_session cookie is required when present; without one the
// identity headers are trusted. Anonymous requests pass through.
func Identify(validator SessionValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := strings.TrimSpace(c.Get(HeaderSessionID))

		if validator != nil {
			cookie := c.Cookies(sessionCookie)
			if cookie == "" {
				return c.Next()
			}
			user, err := validator.Validate(c.Protocol(), c.Hostname(), cookie)
			if err != nil {
				return &types.CustomError{
					Code:    fiber.StatusForbidden,
					Message: fmt.Sprintf("Invalid session: %v", err),
					Type:    "content.authorization",
				}
			}
			c.Locals(actorKey, services.Actor{UserID: user.ID, SessionID: sessionID, Roles: user.Roles})
			return c.Next()
		}

		if userID := strings.TrimSpace(c.Get(HeaderUserID)); userID != "" {
			c.Locals(actorKey, services.Actor{
				UserID:    userID,
				SessionID: sessionID,
				Roles:     splitRoles(c.Get(HeaderUserRoles)),
			})
		}
		return c.Next()
	}
}

// RequireUser rejects requests without an identified caller
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ActorFrom(c); !ok {
			return &types.CustomError{
				Code:    fiber.StatusUnauthorized,
				Message: "An authenticated user is required",
				Type:    "content.authorization",
			}
		}
		return c.Next()
	}
}

// ActorFrom returns the caller stored by Identify
func ActorFrom(c *fiber.Ctx) (services.Actor, bool) {
	actor, ok := c.Locals(actorKey).(services.Actor)
	return actor, ok
}

func splitRoles(header string) []string {
	var roles []string
	for _, role := range strings.Split(header, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
