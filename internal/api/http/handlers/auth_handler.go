package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/itsupport/helpdesk/internal/api/dto"
	"github.com/itsupport/helpdesk/internal/service"
	"github.com/itsupport/helpdesk/internal/session"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

// AuthHandler exposes login, logout and the current-session endpoint.
type AuthHandler struct {
	auth      *service.AuthService
	cookieTTL time.Duration
	secure    bool
}

// NewAuthHandler constructs the handler. secure controls the cookie's Secure
// flag and is off in development.
func NewAuthHandler(auth *service.AuthService, cookieTTL time.Duration, secure bool) *AuthHandler {
	return &AuthHandler{auth: auth, cookieTTL: cookieTTL, secure: secure}
}

// Login handles POST /api/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	principal, cookie, err := h.auth.Login(c.UserContext(), req.Login, req.Password)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     session.CookieName,
		Value:    cookie,
		Path:     "/",
		MaxAge:   int(h.cookieTTL.Seconds()),
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"data": dto.FromPrincipal(principal)})
}

// Logout handles POST /api/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.auth.Logout(c.UserContext(), c.Cookies(session.CookieName)); err != nil {
		return apperrors.NewInternalError(err)
	}
	c.Cookie(&fiber.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"data": fiber.Map{"logged_out": true}})
}

// Me handles GET /api/user for an authenticated session.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, err := h.auth.Resolve(c.UserContext(), c.Cookies(session.CookieName))
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if principal == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"data": dto.FromPrincipal(principal)})
}
