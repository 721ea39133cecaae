package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmynk/girandola/internal/models"
)

// UserStorage is the slice of the store the authenticators need.
type UserStorage interface {
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Authenticator turns an external credential into a local user.
// Implementations exist per sign-in method so the service layer does not
// care how the credential was obtained.
type Authenticator interface {
	// Authenticate verifies the credential and returns the matching user,
	// creating it on first sign-in.
	Authenticate(ctx context.Context, credential string) (*models.User, error)
}

// FindOrCreate returns the user owning the profile's email, creating it if
// needed. A newer name or picture from the provider replaces the stored one.
func FindOrCreate(ctx context.Context, storage UserStorage, profile *Profile) (*models.User, error) {
	email := strings.TrimSpace(profile.Email)
	if email == "" {
		return nil, ErrEmailMissing
	}
	user, err := storage.UpsertUser(ctx, models.NewUser(email, profile.Name, profile.Picture))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

var _ Authenticator = (*IDTokenAuthenticator)(nil)

// IDTokenAuthenticator signs in native clients that already hold a
// provider-issued ID token.
type IDTokenAuthenticator struct {
	provider Provider
	storage  UserStorage
}

// NewIDTokenAuthenticator creates an authenticator for provider ID tokens.
// A nil provider makes every attempt fail with ErrProviderDisabled.
func NewIDTokenAuthenticator(provider Provider, storage UserStorage) *IDTokenAuthenticator {
	return &IDTokenAuthenticator{provider: provider, storage: storage}
}

func (a *IDTokenAuthenticator) Authenticate(ctx context.Context, idToken string) (*models.User, error) {
	if a.provider == nil {
		return nil, ErrProviderDisabled
	}
	if idToken == "" {
		return nil, ErrMissingToken
	}
	profile, err := a.provider.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return FindOrCreate(ctx, a.storage, profile)
}
