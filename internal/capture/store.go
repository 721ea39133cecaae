package capture

import (
	"sync"

	"github.com/mmynk/girandola/internal/models"
)

// MarkerStore is the local, newest-first list of markers shown on the map.
type MarkerStore struct {
	mu      sync.RWMutex
	markers []models.Marker
}

func NewMarkerStore() *MarkerStore {
	return &MarkerStore{}
}

// Seed replaces the contents with a fetched listing.
func (s *MarkerStore) Seed(markers []models.Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append([]models.Marker(nil), markers...)
}

// Prepend puts m at the head of the list. Duplicates are kept.
func (s *MarkerStore) Prepend(m models.Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append([]models.Marker{m}, s.markers...)
}

// All returns a copy of the list.
func (s *MarkerStore) All() []models.Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Marker, len(s.markers))
	copy(out, s.markers)
	return out
}

func (s *MarkerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}
