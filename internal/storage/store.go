// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/girandola/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownUser is returned when a marker references a user that does not exist.
	ErrUnknownUser = errors.New("unknown user")
)

// ContributorLimit is the number of rows returned by the leaderboard.
const ContributorLimit = 20

// Store defines the interface for marker and user persistence.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, Badger)
// without changing the service layer.
//
// Listings are ordered newest first (created_at descending, id as tie breaker).
// Markers are append-only: there is no update or delete.
type Store interface {
	// CreateMarker persists a new marker owned by ownerID.
	// The store assigns ID and CreatedAt and resolves OwnerEmail.
	CreateMarker(ctx context.Context, ownerID string, lat, lng float64) (*models.Marker, error)

	// ListMarkers returns every marker, newest first.
	ListMarkers(ctx context.Context) ([]models.Marker, error)

	// ListMarkersByOwner returns the markers created by ownerID, newest first.
	ListMarkersByOwner(ctx context.Context, ownerID string) ([]models.Marker, error)

	// TopContributors returns up to limit users with at least one marker,
	// ordered by marker count descending. Rank is filled in by the store.
	TopContributors(ctx context.Context, limit int) ([]models.Contributor, error)

	// UpsertUser finds a user by email, creating it when missing.
	// Name and Image of an existing user are refreshed when the new values are non-empty.
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)

	// GetUserByEmail retrieves a user by email. Returns ErrNotFound when missing.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID retrieves a user by ID. Returns ErrNotFound when missing.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// RankContributors assigns 1-based ranks and the anonymous placeholder name.
func RankContributors(contributors []models.Contributor) []models.Contributor {
	for i := range contributors {
		contributors[i].Rank = i + 1
		if contributors[i].Name == "" {
			contributors[i].Name = models.AnonymousName
		}
	}
	return contributors
}
