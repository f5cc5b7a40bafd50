// Package oidc implements OpenID Connect social login: service discovery,
// authorization code exchange, and claims extraction. The resulting verified
// identity (subject, email, name) feeds the auth service's account linking.
package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/orgdesk/orgdesk/internal/config"
)

// Provider wraps the generic OIDC provider
type Provider struct {
	verifier *oidc.IDTokenVerifier
	config   *oauth2.Config
	provider *oidc.Provider
}

// NewProvider initializes an OIDC provider using a background context.
func NewProvider(cfg *config.OIDCConfig) (*Provider, error) {
	return NewProviderWithContext(context.Background(), cfg)
}

// NewProviderWithContext initializes an OIDC provider with the given context,
// allowing callers to set deadlines or cancellation for the discovery request.
func NewProviderWithContext(ctx context.Context, cfg *config.OIDCConfig) (*Provider, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("OIDC is not enabled")
	}

	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}

	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("OIDC client secret is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}

	return &Provider{
		verifier: verifier,
		config:   oauth2Config,
		provider: provider,
	}, nil
}

// GetAuthURL returns the OAuth2 authorization URL
func (p *Provider) GetAuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// ExchangeCode exchanges the authorization code for tokens
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	return token, nil
}

// VerifyIDToken verifies and extracts claims from the ID token
func (p *Provider) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	return idToken, nil
}

// ExtractUserInfo extracts the verified identity from the ID token
func (p *Provider) ExtractUserInfo(idToken *oidc.IDToken) (sub, email, name string, err error) {
	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}

	if err := idToken.Claims(&claims); err != nil {
		return "", "", "", fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	if claims.Sub == "" {
		return "", "", "", fmt.Errorf("ID token missing 'sub' claim")
	}

	if claims.Email == "" {
		return "", "", "", fmt.Errorf("ID token missing 'email' claim")
	}

	// Name is optional, use email if not provided
	if claims.Name == "" {
		claims.Name = claims.Email
	}

	return claims.Sub, claims.Email, claims.Name, nil
}
