package models

import "time"

// Marker represents a geotagged point dropped on the shared map.
// A marker is immutable after creation and belongs permanently to its creator.
type Marker struct {
	// ID is the unique identifier for the marker (UUID format), assigned by the store.
	ID string `json:"id"`

	// Lat is the latitude in decimal degrees.
	Lat float64 `json:"lat"`

	// Lng is the longitude in decimal degrees.
	Lng float64 `json:"lng"`

	// OwnerEmail is the email of the user who created the marker.
	// Resolved from the authenticated session, never supplied by the client.
	OwnerEmail string `json:"ownerEmail"`

	// CreatedAt is the creation time assigned by the store.
	CreatedAt time.Time `json:"createdAt"`
}
