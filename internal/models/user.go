package models

// User represents a registered user account.
// Accounts are created on first sign-in with Google; there are no passwords.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string `json:"id"`

	// Email is the user's email address (unique).
	// It is the stable identity used to attribute markers.
	Email string `json:"email"`

	// Name is the display name reported by the identity provider.
	// May be empty.
	Name string `json:"name,omitempty"`

	// Image is the avatar URL reported by the identity provider.
	// May be empty.
	Image string `json:"image,omitempty"`

	// CreatedAt is the Unix timestamp when the user account was created.
	CreatedAt int64 `json:"createdAt"`
}

// NewUser creates a user value for the given identity provider profile.
// ID and CreatedAt are left for the store to assign.
func NewUser(email, name, image string) *User {
	return &User{
		Email: email,
		Name:  name,
		Image: image,
	}
}
