package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Shubham6444/host/internal/logging"
	"github.com/Shubham6444/host/internal/vfs"
)

// OIDCConfig holds OIDC provider configuration.
type OIDCConfig struct {
	IssuerURL  string
	ClientID   string
	AdminClaim string // claim key for admin status (default: "is_admin")
	AdminValue string // claim value that indicates admin (default: "true")
}

// oidcSessionPrefix marks session IDs derived from ID tokens.
const oidcSessionPrefix = "oidc-"

// OIDCProvider validates OIDC ID tokens and maps them to local accounts.
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	config   OIDCConfig
	users    UserStore
}

// NewOIDCProvider creates an OIDC provider from config.
// Returns nil if IssuerURL is empty (OIDC disabled).
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig, users UserStore) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}

	if cfg.AdminClaim == "" {
		cfg.AdminClaim = "is_admin"
	}
	if cfg.AdminValue == "" {
		cfg.AdminValue = "true"
	}

	logging.Info("OIDC provider initialized",
		zap.String("issuer", cfg.IssuerURL),
		zap.String("client_id", cfg.ClientID))

	return &OIDCProvider{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		config:   cfg,
		users:    users,
	}, nil
}

// ValidateToken verifies an ID token and returns local claims. The session
// ID is derived from the token so each login keeps its own clipboard.
func (o *OIDCProvider) ValidateToken(ctx context.Context, tokenStr string) (*Claims, error) {
	idToken, err := o.verifier.Verify(ctx, tokenStr)
	if err != nil {
		return nil, err
	}

	var std struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&std); err != nil {
		return nil, fmt.Errorf("parse oidc claims: %w", err)
	}

	username := std.PreferredUsername
	if username == "" {
		username = std.Email
	}
	if username == "" {
		username = std.Sub
	}

	var raw map[string]interface{}
	idToken.Claims(&raw)
	isAdmin := false
	if val, ok := raw[o.config.AdminClaim]; ok {
		isAdmin = fmt.Sprintf("%v", val) == o.config.AdminValue
	}

	u, err := o.users.EnsureExternal(ctx, username, std.Email, isAdmin)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	role := vfs.RoleUser
	if isAdmin {
		role = vfs.RoleAdmin
	}
	return &Claims{
		UserID:   u.ID,
		Username: u.Username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        oidcSessionPrefix + hashToken(tokenStr)[:24],
			Subject:   std.Sub,
			Issuer:    idToken.Issuer,
			ExpiresAt: jwt.NewNumericDate(idToken.Expiry),
		},
	}, nil
}
