package models

// AnonymousName is shown on the leaderboard for users without a display name.
const AnonymousName = "Anonymous"

// Contributor is one leaderboard row: a user and the number of markers they dropped.
type Contributor struct {
	// Rank is the 1-based position in the leaderboard.
	Rank int `json:"rank"`

	// ID is the user ID.
	ID string `json:"id"`

	// Name is the display name, AnonymousName when the user has none.
	Name string `json:"name"`

	// Image is the avatar URL, nil when unknown.
	Image *string `json:"image"`

	// Count is the number of markers created by the user.
	Count int `json:"count"`
}
