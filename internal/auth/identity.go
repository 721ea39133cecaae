package auth

import (
	"context"

	"github.com/mmynk/girandola/internal/models"
)

// Identity is the authenticated caller. A nil *Identity means no session.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

// IdentityFromUser builds the identity for a stored user.
func IdentityFromUser(user *models.User) *Identity {
	return &Identity{UserID: user.ID, Email: user.Email, Name: user.Name}
}

type identityKey struct{}

// NewContext returns ctx carrying id.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
