package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/girandola/internal/auth"
	"github.com/mmynk/girandola/internal/metrics"
	"github.com/mmynk/girandola/internal/models"
	"github.com/mmynk/girandola/internal/storage"
)

// SignInResult is a freshly issued session.
type SignInResult struct {
	Token       string
	User        *models.User
	CallbackURL string
}

// AuthService issues sessions for the web OAuth flow and for native
// clients holding a provider ID token.
type AuthService struct {
	users      auth.UserStorage
	provider   auth.Provider
	native     auth.Authenticator
	jwtManager *auth.JWTManager
	states     *auth.StateManager
}

// NewAuthService creates a new authentication service. provider may be nil
// when no identity provider is configured; sign-in then fails with
// auth.ErrProviderDisabled while session checks keep working.
func NewAuthService(users auth.UserStorage, provider auth.Provider, jwtManager *auth.JWTManager, states *auth.StateManager) *AuthService {
	return &AuthService{
		users:      users,
		provider:   provider,
		native:     auth.NewIDTokenAuthenticator(provider, users),
		jwtManager: jwtManager,
		states:     states,
	}
}

// Enabled reports whether sign-in is possible.
func (s *AuthService) Enabled() bool {
	return s.provider != nil
}

// SessionTTL is the lifetime of issued session tokens.
func (s *AuthService) SessionTTL() int {
	return int(s.jwtManager.TTL().Seconds())
}

// StateTTL is the lifetime of the login state cookie.
func (s *AuthService) StateTTL() int {
	return int(s.states.TTL().Seconds())
}

// BeginLogin starts the browser flow. It returns the provider URL to
// redirect to and the sealed state to keep in a cookie until the callback.
func (s *AuthService) BeginLogin(callbackURL string) (redirectURL, sealedState string, err error) {
	if s.provider == nil {
		return "", "", auth.ErrProviderDisabled
	}
	state, sealed, err := s.states.Issue(callbackURL)
	if err != nil {
		return "", "", err
	}
	return s.provider.AuthURL(state.State, state.Verifier), sealed, nil
}

// CompleteLogin finishes the browser flow: it checks the state, exchanges the
// code, finds or creates the user and issues a session.
func (s *AuthService) CompleteLogin(ctx context.Context, code, state, sealedState string) (*SignInResult, error) {
	if s.provider == nil {
		return nil, auth.ErrProviderDisabled
	}
	login, err := s.states.Open(sealedState, state)
	if err != nil {
		slog.Warn("Login callback rejected", "error", err)
		return nil, err
	}

	profile, err := s.provider.Exchange(ctx, code, login.Verifier)
	if err != nil {
		metrics.RecordSignIn("web", err)
		slog.Warn("Code exchange failed", "error", err)
		return nil, err
	}
	user, err := auth.FindOrCreate(ctx, s.users, profile)
	if err != nil {
		metrics.RecordSignIn("web", err)
		return nil, err
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	result.CallbackURL = login.CallbackURL
	metrics.RecordSignIn("web", nil)
	slog.Info("User signed in", "user_id", user.ID, "method", "web")
	return result, nil
}

// NativeSignIn exchanges a provider ID token from the native shell for a session.
func (s *AuthService) NativeSignIn(ctx context.Context, idToken string) (*SignInResult, error) {
	user, err := s.native.Authenticate(ctx, idToken)
	metrics.RecordSignIn("native", err)
	if err != nil {
		slog.Warn("Native sign-in failed", "error", err)
		return nil, err
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	slog.Info("User signed in", "user_id", user.ID, "method", "native")
	return result, nil
}

// CurrentUser returns the stored user behind the session, or nil when
// there is no session or its user no longer exists.
func (s *AuthService) CurrentUser(ctx context.Context, id *auth.Identity) (*models.User, error) {
	if id == nil {
		return nil, nil
	}
	user, err := s.users.GetUserByID(ctx, id.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}
	return user, nil
}

func (s *AuthService) issue(user *models.User) (*SignInResult, error) {
	token, err := s.jwtManager.Generate(user)
	if err != nil {
		slog.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, err
	}
	return &SignInResult{Token: token, User: user}, nil
}
