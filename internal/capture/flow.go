// Package capture drives the marker capture cycle: acquire a candidate by
// GPS or by picking on the map, check it against the accuracy gate, confirm
// it through the submission gateway and keep the local marker list current.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmynk/girandola/internal/geo"
	"github.com/mmynk/girandola/internal/models"
)

var (
	ErrNotPicking         = errors.New("map clicks are only accepted while picking or confirming")
	ErrInvalidState       = errors.New("operation not allowed in current state")
	ErrNoCandidate        = errors.New("no candidate to confirm")
	ErrAccuracyTooLow     = errors.New("accuracy too low")
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrSubmissionFailed   = errors.New("submission failed")
	ErrFetchFailed        = errors.New("fetch failed")
	ErrCanceled           = errors.New("capture cycle was abandoned")
)

// State of the capture cycle.
type State int

const (
	Idle State = iota
	Picking
	Confirming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Picking:
		return "picking"
	case Confirming:
		return "confirming"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Candidate is a location awaiting confirmation. Accuracy is nil for map picks.
type Candidate struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

func (c *Candidate) clone() *Candidate {
	if c == nil {
		return nil
	}
	out := *c
	if c.Accuracy != nil {
		acc := *c.Accuracy
		out.Accuracy = &acc
	}
	return &out
}

// Gateway persists a confirmed candidate and returns the stored marker.
type Gateway interface {
	Submit(ctx context.Context, lat, lng float64) (*models.Marker, error)
}

// Fetcher lists markers from the persistence boundary.
type Fetcher interface {
	ListMarkers(ctx context.Context) ([]models.Marker, error)
}

// Deps wires a Flow. A nil Gate means DefaultGate and a nil Store an empty store.
type Deps struct {
	Provider geo.Provider
	Gateway  Gateway
	Fetcher  Fetcher
	Gate     *AccuracyGate
	Store    *MarkerStore
}

// Snapshot is a consistent view of the flow for rendering.
type Snapshot struct {
	State      State
	Candidate  *Candidate
	Accuracy   *float64
	CanConfirm bool
	Submitting bool
	Acquiring  bool
	Err        error
}

// Flow is the pick/confirm state machine. It holds at most one candidate
// and allows at most one submission at a time.
type Flow struct {
	provider geo.Provider
	gateway  Gateway
	fetcher  Fetcher
	gate     AccuracyGate
	store    *MarkerStore

	mu         sync.Mutex
	state      State
	candidate  *Candidate
	acquiring  bool
	submitting bool
	err        error
	// generation changes whenever a cycle is abandoned; results carrying an
	// older generation are dropped.
	generation uint64
}

func NewFlow(deps Deps) *Flow {
	gate := DefaultGate()
	if deps.Gate != nil {
		gate = *deps.Gate
	}
	store := deps.Store
	if store == nil {
		store = NewMarkerStore()
	}
	return &Flow{
		provider: deps.Provider,
		gateway:  deps.Gateway,
		fetcher:  deps.Fetcher,
		gate:     gate,
		store:    store,
	}
}

// Store returns the marker list backing the flow.
func (f *Flow) Store() *MarkerStore {
	return f.store
}

// Load seeds the marker store. On failure the store keeps its contents.
func (f *Flow) Load(ctx context.Context) error {
	markers, err := f.fetcher.ListMarkers(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.err = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		slog.Warn("Failed to load markers", "error", err)
		return f.err
	}
	f.store.Seed(markers)
	return nil
}

// StartPicking enters pick mode, discarding any pending candidate.
func (f *Flow) StartPicking() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Picking {
		return
	}
	f.reset()
	f.state = Picking
	slog.Debug("Pick mode entered")
}

// MapClick turns a click into the pending candidate. While confirming, the
// click replaces the pending candidate and drops any reading still in flight.
func (f *Flow) MapClick(lat, lng float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.submitting:
		return ErrSubmissionInFlight
	case f.state == Idle:
		return ErrNotPicking
	}
	f.candidate = &Candidate{Lat: lat, Lng: lng}
	f.state = Confirming
	f.acquiring = false
	f.err = nil
	f.generation++
	return nil
}

// UseGPS acquires one reading and makes it the pending candidate. A reading
// outside the accuracy gate is still shown but returns ErrAccuracyTooLow.
func (f *Flow) UseGPS(ctx context.Context) (*Candidate, error) {
	f.mu.Lock()
	switch {
	case f.state == Picking:
		f.mu.Unlock()
		return nil, ErrInvalidState
	case f.submitting:
		f.mu.Unlock()
		return nil, ErrSubmissionInFlight
	case f.acquiring:
		f.mu.Unlock()
		return nil, ErrInvalidState
	}
	f.acquiring = true
	f.err = nil
	gen := f.generation
	f.mu.Unlock()

	pos, err := f.provider.CurrentPosition(ctx, geo.Options{
		EnableHighAccuracy: true,
		Timeout:            geo.DefaultTimeout,
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.generation {
		return nil, ErrCanceled
	}
	f.acquiring = false
	if err != nil {
		f.err = err
		return nil, err
	}

	accuracy := pos.Accuracy
	f.candidate = &Candidate{Lat: pos.Lat, Lng: pos.Lng, Accuracy: &accuracy}
	f.state = Confirming
	if !f.gate.Acceptable(accuracy) {
		f.err = fmt.Errorf("%w: %.1f m exceeds %.1f m", ErrAccuracyTooLow, accuracy, f.gate.Threshold)
		return f.candidate.clone(), f.err
	}
	return f.candidate.clone(), nil
}

// Confirm submits the pending candidate. On success the returned marker is
// prepended to the store and the flow returns to Idle; on failure the
// candidate stays pending.
func (f *Flow) Confirm(ctx context.Context) (*models.Marker, error) {
	f.mu.Lock()
	switch {
	case f.submitting:
		f.mu.Unlock()
		return nil, ErrSubmissionInFlight
	case f.state != Confirming:
		f.mu.Unlock()
		return nil, ErrInvalidState
	case f.candidate == nil:
		f.mu.Unlock()
		return nil, ErrNoCandidate
	case !f.gate.Allows(f.candidate):
		f.mu.Unlock()
		return nil, ErrAccuracyTooLow
	}
	f.submitting = true
	f.err = nil
	gen := f.generation
	candidate := *f.candidate
	f.mu.Unlock()

	marker, err := f.gateway.Submit(ctx, candidate.Lat, candidate.Lng)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.generation {
		return nil, ErrCanceled
	}
	f.submitting = false
	if err != nil {
		f.err = fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		return nil, f.err
	}

	f.store.Prepend(*marker)
	f.reset()
	slog.Debug("Marker confirmed", "id", marker.ID)
	return marker, nil
}

// Cancel abandons the current cycle and returns to Idle.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := Snapshot{
		State:      f.state,
		Candidate:  f.candidate.clone(),
		Submitting: f.submitting,
		Acquiring:  f.acquiring,
		Err:        f.err,
	}
	if snap.Candidate != nil {
		snap.Accuracy = snap.Candidate.Accuracy
	}
	snap.CanConfirm = f.state == Confirming && !f.submitting && f.gate.Allows(f.candidate)
	return snap
}

// reset returns to Idle and invalidates in-flight work. Callers hold mu.
func (f *Flow) reset() {
	f.state = Idle
	f.candidate = nil
	f.acquiring = false
	f.submitting = false
	f.err = nil
	f.generation++
}
