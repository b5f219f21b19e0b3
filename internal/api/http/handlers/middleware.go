package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/itsupport/helpdesk/internal/service"
	"github.com/itsupport/helpdesk/internal/session"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

const principalKey = "principal"

// SessionMiddleware resolves the session cookie into a principal.
type SessionMiddleware struct {
	auth *service.AuthService
}

// NewSessionMiddleware constructs the middleware.
func NewSessionMiddleware(auth *service.AuthService) *SessionMiddleware {
	return &SessionMiddleware{auth: auth}
}

// Handle requires an authenticated session and stores the principal in the
// request locals.
func (m *SessionMiddleware) Handle(c *fiber.Ctx) error {
	principal, err := m.auth.Resolve(c.UserContext(), c.Cookies(session.CookieName))
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if principal == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// RequireAdmin allows only administrator principals. Must run after Handle.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !CurrentPrincipal(c).IsAdmin() {
			return apperrors.NewForbidden("administrator access required")
		}
		return c.Next()
	}
}

// CurrentPrincipal returns the principal resolved by SessionMiddleware.
func CurrentPrincipal(c *fiber.Ctx) *session.Principal {
	principal, _ := c.Locals(principalKey).(*session.Principal)
	return principal
}

// APIKeyMiddleware guards the integration API. The key travels in the
// X-API-Key header or the api_key query parameter. A missing key is 401, a
// wrong one 403.
func APIKeyMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return apperrors.NewForbidden("integration API is disabled")
		}
		key := c.Get("X-API-Key")
		if key == "" {
			key = c.Query("api_key")
		}
		if key == "" {
			return apperrors.NewUnauthorized("API key required")
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
			return apperrors.NewForbidden("invalid API key")
		}
		return c.Next()
	}
}
