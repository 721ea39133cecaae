package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"
)

var (
	// ErrProviderDisabled is returned when no identity provider is configured.
	ErrProviderDisabled = errors.New("sign-in provider not configured")
	// ErrEmailMissing is returned when the provider did not share a usable email.
	ErrEmailMissing = errors.New("identity provider returned no verified email")
	// ErrInvalidCredentials wraps provider-side verification failures.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Profile is what the identity provider tells us about the user.
type Profile struct {
	Email   string
	Name    string
	Picture string
}

// Provider is an OpenID Connect identity provider.
type Provider interface {
	// AuthURL is where the browser starts the login flow.
	AuthURL(state, verifier string) string
	// Exchange trades an authorization code for the user's profile.
	Exchange(ctx context.Context, code, verifier string) (*Profile, error)
	// VerifyIDToken checks an ID token obtained by a native client.
	VerifyIDToken(ctx context.Context, idToken string) (*Profile, error)
}

// GoogleConfig configures the Google relying party.
type GoogleConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client
}

var _ Provider = (*GoogleProvider)(nil)

// GoogleProvider signs users in with Google through the zitadel OIDC client.
type GoogleProvider struct {
	rp rp.RelyingParty
}

// NewGoogleProvider runs OIDC discovery against the issuer.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.ClientID == "" {
		return nil, ErrProviderDisabled
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "https://accounts.google.com"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx,
		cfg.Issuer,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.RedirectURL,
		[]string{oidc.ScopeOpenID, oidc.ScopeProfile, oidc.ScopeEmail},
		rp.WithHTTPClient(cfg.HTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("create relying party: %w", err)
	}
	return &GoogleProvider{rp: relyingParty}, nil
}

func (g *GoogleProvider) AuthURL(state, verifier string) string {
	return rp.AuthURL(state, g.rp, rp.WithCodeChallenge(oidc.NewSHACodeChallenge(verifier)))
}

func (g *GoogleProvider) Exchange(ctx context.Context, code, verifier string) (*Profile, error) {
	tokens, err := rp.CodeExchange[*oidc.IDTokenClaims](ctx, code, g.rp, rp.WithCodeVerifier(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange: %v", ErrInvalidCredentials, err)
	}
	if tokens.IDTokenClaims == nil {
		return nil, fmt.Errorf("%w: no id token in response", ErrInvalidCredentials)
	}
	return profileFromClaims(tokens.IDTokenClaims)
}

func (g *GoogleProvider) VerifyIDToken(ctx context.Context, idToken string) (*Profile, error) {
	claims, err := rp.VerifyIDToken[*oidc.IDTokenClaims](ctx, idToken, g.rp.IDTokenVerifier())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return profileFromClaims(claims)
}

func profileFromClaims(claims *oidc.IDTokenClaims) (*Profile, error) {
	if claims.Email == "" || !bool(claims.EmailVerified) {
		return nil, ErrEmailMissing
	}
	return &Profile{
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}
