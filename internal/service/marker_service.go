package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/mmynk/girandola/internal/auth"
	"github.com/mmynk/girandola/internal/metrics"
	"github.com/mmynk/girandola/internal/models"
	"github.com/mmynk/girandola/internal/storage"
)

var (
	// ErrUnauthorized means the operation needs a session and there is none.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCoordinates means lat or lng is missing or not a finite number.
	ErrInvalidCoordinates = errors.New("invalid payload: lat and lng must be numbers")
)

// MarkerInput is the body of a marker submission. Pointers distinguish a
// missing coordinate from a zero one.
type MarkerInput struct {
	Lat *float64 `json:"lat" validate:"required"`
	Lng *float64 `json:"lng" validate:"required"`
}

var validate = validator.New()

// Coordinates validates the input and returns its values.
func (in *MarkerInput) Coordinates() (lat, lng float64, err error) {
	if in == nil {
		return 0, 0, ErrInvalidCoordinates
	}
	if err := validate.Struct(in); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	lat, lng = *in.Lat, *in.Lng
	if !finite(lat) || !finite(lng) {
		return 0, 0, ErrInvalidCoordinates
	}
	return lat, lng, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// MarkerService holds the marker operations shared by the REST and RPC surfaces.
type MarkerService struct {
	store storage.Store
}

// NewMarkerService creates a new MarkerService with the given storage backend.
func NewMarkerService(store storage.Store) *MarkerService {
	return &MarkerService{store: store}
}

// CreateMarker saves a marker owned by the caller. The owner always comes
// from the session, never from the payload.
func (s *MarkerService) CreateMarker(ctx context.Context, id *auth.Identity, lat, lng float64) (*models.Marker, error) {
	if id == nil {
		metrics.RecordRejection("unauthorized")
		return nil, ErrUnauthorized
	}
	if !finite(lat) || !finite(lng) {
		metrics.RecordRejection("invalid_payload")
		return nil, ErrInvalidCoordinates
	}

	marker, err := s.store.CreateMarker(ctx, id.UserID, lat, lng)
	if errors.Is(err, storage.ErrUnknownUser) {
		// The session outlived its user.
		metrics.RecordRejection("unauthorized")
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if err != nil {
		metrics.RecordRejection("store_error")
		slog.Error("CreateMarker failed", "user_id", id.UserID, "error", err)
		return nil, fmt.Errorf("create marker: %w", err)
	}

	metrics.MarkersCreated.Inc()
	slog.Info("Marker created", "marker_id", marker.ID, "user_id", id.UserID)
	return marker, nil
}

// ListMarkers returns every marker, newest first. No session needed.
func (s *MarkerService) ListMarkers(ctx context.Context) ([]models.Marker, error) {
	markers, err := s.store.ListMarkers(ctx)
	if err != nil {
		slog.Error("ListMarkers failed", "error", err)
		return nil, fmt.Errorf("list markers: %w", err)
	}
	return markers, nil
}

// ExportMine returns the caller's own markers, newest first.
func (s *MarkerService) ExportMine(ctx context.Context, id *auth.Identity) ([]models.Marker, error) {
	if id == nil {
		return nil, ErrUnauthorized
	}
	markers, err := s.store.ListMarkersByOwner(ctx, id.UserID)
	if err != nil {
		slog.Error("ExportMine failed", "user_id", id.UserID, "error", err)
		return nil, fmt.Errorf("list own markers: %w", err)
	}
	slog.Info("Markers exported", "user_id", id.UserID, "count", len(markers))
	return markers, nil
}

// Contributors returns the leaderboard.
func (s *MarkerService) Contributors(ctx context.Context) ([]models.Contributor, error) {
	contributors, err := s.store.TopContributors(ctx, storage.ContributorLimit)
	if err != nil {
		slog.Error("Contributors failed", "error", err)
		return nil, fmt.Errorf("top contributors: %w", err)
	}
	return contributors, nil
}
