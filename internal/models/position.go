package models

import "time"

// Position is a single geolocation reading.
// Optional fields the source cannot supply are nil, never zero.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`

	// Accuracy is the horizontal accuracy radius in metres.
	Accuracy float64 `json:"accuracy"`

	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy,omitempty"`
	Heading          *float64 `json:"heading,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`

	// Timestamp is when the reading was taken.
	Timestamp time.Time `json:"timestamp"`
}
