package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itsupport/helpdesk/internal/config"
	"github.com/itsupport/helpdesk/internal/domain"
)

// Stable authentication failure kinds.
var (
	ErrMissingCredentials  = errors.New("username and password required")
	ErrInvalidCredentials  = errors.New("invalid login or password")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// SuperadminGroup is the group attached to the built-in administrator.
const SuperadminGroup = "Администрация"

// Identity is the normalized result of a successful authentication.
type Identity struct {
	Login      string
	FullName   string
	Role       domain.Role
	Groups     []string
	Superadmin bool
}

type providerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type providerResponse struct {
	Success  bool     `json:"success"`
	Username string   `json:"username"`
	FullName string   `json:"full_name"`
	Groups   []string `json:"groups"`
	Error    string   `json:"error"`
}

// Gateway authenticates against the external identity provider with a local
// superadmin fallback.
type Gateway struct {
	client        *http.Client
	providerURL   string
	allowedGroups map[string]struct{}
	superLogin    string
	superHash     []byte
	logger        *zap.Logger
}

// NewGateway builds the gateway. When no superadmin password is configured one
// is generated and logged once, matching first-run provisioning.
func NewGateway(cfg config.AuthConfig, logger *zap.Logger) (*Gateway, error) {
	password := cfg.SuperadminPassword
	if password == "" {
		password = uuid.NewString()[:12]
		logger.Info("generated superadmin credentials",
			zap.String("username", cfg.SuperadminLogin),
			zap.String("password", password))
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash superadmin password: %w", err)
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedGroups))
	for _, group := range cfg.AllowedGroups {
		allowed[strings.TrimSpace(group)] = struct{}{}
	}

	return &Gateway{
		client:        &http.Client{Timeout: cfg.ProviderTimeout()},
		providerURL:   cfg.ProviderURL,
		allowedGroups: allowed,
		superLogin:    cfg.SuperadminLogin,
		superHash:     []byte(hash),
		logger:        logger,
	}, nil
}

// Authenticate resolves credentials to a normalized identity. The superadmin
// login is checked locally and never reaches the provider.
func (g *Gateway) Authenticate(ctx context.Context, username, password string) (*Identity, error) {
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	if username == g.superLogin {
		if err := ComparePassword(string(g.superHash), password); err == nil {
			return &Identity{
				Login:      username,
				FullName:   "Супер администратор",
				Role:       domain.RoleAdmin,
				Groups:     []string{SuperadminGroup},
				Superadmin: true,
			}, nil
		}
		// Fall through: a mistyped superadmin password is still tried against
		// the provider, as a regular login could share the name.
	}

	result, err := g.callProvider(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, ErrInvalidCredentials
	}

	role := domain.RoleUser
	for _, group := range result.Groups {
		if _, ok := g.allowedGroups[strings.TrimSpace(group)]; ok {
			role = domain.RoleAdmin
			break
		}
	}

	groups := result.Groups
	if groups == nil {
		groups = []string{}
	}
	return &Identity{
		Login:    result.Username,
		FullName: result.FullName,
		Role:     role,
		Groups:   groups,
	}, nil
}

func (g *Gateway) callProvider(ctx context.Context, username, password string) (*providerResponse, error) {
	body, err := json.Marshal(providerRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.providerURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error("identity provider request failed", zap.Error(err))
		return nil, ErrProviderUnavailable
	}
	defer resp.Body.Close()

	// Bad credentials are reported through success:false in a 2xx body. Any
	// non-2xx means the provider itself is misbehaving.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Error("identity provider returned error status", zap.Int("status", resp.StatusCode))
		return nil, ErrProviderUnavailable
	}

	var result providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		g.logger.Error("identity provider response malformed", zap.Error(err))
		return nil, ErrProviderUnavailable
	}
	return &result, nil
}
