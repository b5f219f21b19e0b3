package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/itsupport/helpdesk/internal/domain"
	"github.com/itsupport/helpdesk/internal/identity"
	"github.com/itsupport/helpdesk/internal/repository"
	"github.com/itsupport/helpdesk/internal/session"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

// AuthService coordinates login against the identity provider, local user
// records and the session store.
type AuthService struct {
	gateway  *identity.Gateway
	store    repository.Store
	sessions session.Store
	tokens   *session.TokenManager
	logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(gateway *identity.Gateway, store repository.Store, sessions session.Store, tokens *session.TokenManager, logger *zap.Logger) *AuthService {
	return &AuthService{
		gateway:  gateway,
		store:    store,
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
	}
}

// Login authenticates the credentials, syncs the local user record and opens
// a session. It returns the principal and the signed cookie value. The
// built-in administrator never gets a user row.
func (s *AuthService) Login(ctx context.Context, login, password string) (*session.Principal, string, error) {
	ident, err := s.gateway.Authenticate(ctx, login, password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrMissingCredentials):
			return nil, "", apperrors.NewValidationError("login and password are required", nil)
		case errors.Is(err, identity.ErrInvalidCredentials):
			return nil, "", apperrors.NewUnauthorized("invalid login or password")
		case errors.Is(err, identity.ErrProviderUnavailable):
			return nil, "", apperrors.NewUpstreamError("authentication service unavailable", err)
		default:
			return nil, "", apperrors.NewInternalError(err)
		}
	}

	principal := &session.Principal{
		Login:    ident.Login,
		FullName: ident.FullName,
		Role:     ident.Role,
		Groups:   ident.Groups,
	}
	if !ident.Superadmin {
		user := &domain.User{
			Login:    ident.Login,
			FullName: ident.FullName,
			Groups:   ident.Groups,
			Role:     ident.Role,
		}
		if err := s.store.UpsertUser(ctx, user); err != nil {
			return nil, "", apperrors.MapError(err)
		}
		principal.UserID = user.ID
	}

	sessionID, err := s.sessions.Create(ctx, principal)
	if err != nil {
		return nil, "", apperrors.NewInternalError(err)
	}
	cookie, err := s.tokens.Sign(sessionID)
	if err != nil {
		return nil, "", apperrors.NewInternalError(err)
	}
	s.logger.Info("user logged in",
		zap.String("login", principal.Login),
		zap.String("role", string(principal.Role)))
	return principal, cookie, nil
}

// Resolve maps a cookie value back to its principal. A missing, tampered or
// expired cookie yields (nil, nil) so the caller can respond 401.
func (s *AuthService) Resolve(ctx context.Context, cookie string) (*session.Principal, error) {
	if cookie == "" {
		return nil, nil
	}
	sessionID, err := s.tokens.Parse(cookie)
	if err != nil {
		return nil, nil
	}
	return s.sessions.Resolve(ctx, sessionID)
}

// Logout destroys the session behind the cookie. Unknown cookies are ignored.
func (s *AuthService) Logout(ctx context.Context, cookie string) error {
	if cookie == "" {
		return nil
	}
	sessionID, err := s.tokens.Parse(cookie)
	if err != nil {
		return nil
	}
	return s.sessions.Destroy(ctx, sessionID)
}
