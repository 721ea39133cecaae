package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmynk/girandola/internal/geo"
	"github.com/mmynk/girandola/internal/models"
)

// sequenceProvider returns the queued accuracies in order.
type sequenceProvider struct {
	mu         sync.Mutex
	accuracies []float64
	err        error
	block      chan struct{}
}

func (p *sequenceProvider) CurrentPosition(ctx context.Context, opts geo.Options) (*models.Position, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	acc := p.accuracies[0]
	if len(p.accuracies) > 1 {
		p.accuracies = p.accuracies[1:]
	}
	return &models.Position{Lat: 45.07, Lng: 7.68, Accuracy: acc, Timestamp: time.Now()}, nil
}

type fakeGateway struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
	entered chan struct{}
}

func (g *fakeGateway) Submit(ctx context.Context, lat, lng float64) (*models.Marker, error) {
	n := g.calls.Add(1)
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return nil, g.err
	}
	return &models.Marker{
		ID:         fmt.Sprintf("m-%d", n),
		Lat:        lat,
		Lng:        lng,
		OwnerEmail: "alice@example.com",
		CreatedAt:  time.Now().UTC(),
	}, nil
}

type fakeFetcher struct {
	markers []models.Marker
	err     error
}

func (f *fakeFetcher) ListMarkers(ctx context.Context) ([]models.Marker, error) {
	return f.markers, f.err
}

func TestAccuracyGate(t *testing.T) {
	gate := DefaultGate()
	tests := []struct {
		accuracy float64
		want     bool
	}{
		{0, true},
		{9.99, true},
		{10, true},
		{10.01, false},
		{15, false},
		{math.NaN(), false},
		{math.Inf(1), false},
	}
	for _, tt := range tests {
		if got := gate.Acceptable(tt.accuracy); got != tt.want {
			t.Errorf("Acceptable(%v) = %v, want %v", tt.accuracy, got, tt.want)
		}
	}

	if !gate.Allows(&Candidate{Lat: 1, Lng: 2}) {
		t.Error("map picks without accuracy should pass the gate")
	}
	if gate.Allows(nil) {
		t.Error("nil candidate should not pass")
	}
}

func TestMarkerStore(t *testing.T) {
	store := NewMarkerStore()
	store.Seed([]models.Marker{{ID: "b"}, {ID: "a"}})
	store.Prepend(models.Marker{ID: "c"})
	store.Prepend(models.Marker{ID: "c"})

	all := store.All()
	want := []string{"c", "c", "b", "a"}
	if len(all) != len(want) {
		t.Fatalf("Len = %d, want %d", len(all), len(want))
	}
	for i, id := range want {
		if all[i].ID != id {
			t.Errorf("All()[%d] = %s, want %s", i, all[i].ID, id)
		}
	}

	all[0].ID = "mutated"
	if store.All()[0].ID != "c" {
		t.Error("All should return a copy")
	}
}

func TestGPSTooInaccurateThenAccurate(t *testing.T) {
	provider := &sequenceProvider{accuracies: []float64{15, 8}}
	gateway := &fakeGateway{}
	flow := NewFlow(Deps{Provider: provider, Gateway: gateway, Fetcher: &fakeFetcher{}})
	ctx := context.Background()

	cand, err := flow.UseGPS(ctx)
	if !errors.Is(err, ErrAccuracyTooLow) {
		t.Fatalf("expected ErrAccuracyTooLow, got %v", err)
	}
	if cand == nil || *cand.Accuracy != 15 {
		t.Fatalf("candidate should still be shown, got %+v", cand)
	}
	snap := flow.Snapshot()
	if snap.State != Confirming || snap.CanConfirm {
		t.Fatalf("snapshot = %+v, want confirming without confirm", snap)
	}
	if _, err := flow.Confirm(ctx); !errors.Is(err, ErrAccuracyTooLow) {
		t.Fatalf("Confirm should be refused, got %v", err)
	}
	if gateway.calls.Load() != 0 {
		t.Fatal("no submission expected for an inaccurate reading")
	}

	if _, err := flow.UseGPS(ctx); err != nil {
		t.Fatalf("second UseGPS failed: %v", err)
	}
	if !flow.Snapshot().CanConfirm {
		t.Fatal("8 m reading should be confirmable")
	}

	marker, err := flow.Confirm(ctx)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if gateway.calls.Load() != 1 {
		t.Errorf("gateway called %d times, want 1", gateway.calls.Load())
	}
	if all := flow.Store().All(); len(all) != 1 || all[0].ID != marker.ID {
		t.Errorf("store = %+v, want the new marker first", all)
	}
	snap = flow.Snapshot()
	if snap.State != Idle || snap.Candidate != nil || snap.Accuracy != nil {
		t.Errorf("after confirm snapshot = %+v, want clean idle", snap)
	}
}

func TestPickConfirmPrependsToStore(t *testing.T) {
	fetcher := &fakeFetcher{markers: []models.Marker{{ID: "old"}}}
	flow := NewFlow(Deps{Gateway: &fakeGateway{}, Fetcher: fetcher})
	ctx := context.Background()

	if err := flow.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := flow.MapClick(1, 1); !errors.Is(err, ErrNotPicking) {
		t.Fatalf("click while idle: got %v, want ErrNotPicking", err)
	}

	flow.StartPicking()
	if got := flow.Snapshot().State; got != Picking {
		t.Fatalf("state = %s, want picking", got)
	}
	if _, err := flow.UseGPS(ctx); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("GPS while picking: got %v, want ErrInvalidState", err)
	}
	if err := flow.MapClick(45.46, 9.19); err != nil {
		t.Fatalf("MapClick failed: %v", err)
	}
	snap := flow.Snapshot()
	if snap.State != Confirming || !snap.CanConfirm || snap.Accuracy != nil {
		t.Fatalf("snapshot = %+v", snap)
	}

	marker, err := flow.Confirm(ctx)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if marker.Lat != 45.46 || marker.Lng != 9.19 {
		t.Errorf("submitted %v,%v", marker.Lat, marker.Lng)
	}
	all := flow.Store().All()
	if len(all) != 2 || all[0].ID != marker.ID || all[1].ID != "old" {
		t.Errorf("store order = %+v", all)
	}
}

func TestCancelClearsCandidate(t *testing.T) {
	flow := NewFlow(Deps{Gateway: &fakeGateway{}, Fetcher: &fakeFetcher{}})

	flow.StartPicking()
	if err := flow.MapClick(1, 2); err != nil {
		t.Fatalf("MapClick failed: %v", err)
	}
	flow.Cancel()

	snap := flow.Snapshot()
	if snap.State != Idle || snap.Candidate != nil || snap.CanConfirm {
		t.Errorf("snapshot = %+v, want clean idle", snap)
	}
	if _, err := flow.Confirm(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Confirm after cancel: got %v, want ErrInvalidState", err)
	}
}

func TestStartPickingDiscardsPendingCandidate(t *testing.T) {
	flow := NewFlow(Deps{Provider: &sequenceProvider{accuracies: []float64{4}}, Gateway: &fakeGateway{}})
	if _, err := flow.UseGPS(context.Background()); err != nil {
		t.Fatalf("UseGPS failed: %v", err)
	}
	flow.StartPicking()
	snap := flow.Snapshot()
	if snap.State != Picking || snap.Candidate != nil {
		t.Errorf("snapshot = %+v, want picking without candidate", snap)
	}
}

func TestMapClickWhileConfirmingReplacesCandidate(t *testing.T) {
	flow := NewFlow(Deps{Gateway: &fakeGateway{}})

	flow.StartPicking()
	if err := flow.MapClick(45.0, 7.6); err != nil {
		t.Fatalf("first MapClick failed: %v", err)
	}
	if err := flow.MapClick(46.0, 8.0); err != nil {
		t.Fatalf("second MapClick failed: %v", err)
	}

	snap := flow.Snapshot()
	if snap.State != Confirming || snap.Candidate == nil {
		t.Fatalf("snapshot = %+v, want confirming with candidate", snap)
	}
	if snap.Candidate.Lat != 46.0 || snap.Candidate.Lng != 8.0 {
		t.Errorf("candidate = %+v, want 46,8", snap.Candidate)
	}

	marker, err := flow.Confirm(context.Background())
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if marker.Lat != 46.0 || marker.Lng != 8.0 {
		t.Errorf("submitted %v,%v, want the replacement", marker.Lat, marker.Lng)
	}
}

func TestMapClickReplacesInaccurateReading(t *testing.T) {
	flow := NewFlow(Deps{Provider: &sequenceProvider{accuracies: []float64{15}}, Gateway: &fakeGateway{}})

	if _, err := flow.UseGPS(context.Background()); !errors.Is(err, ErrAccuracyTooLow) {
		t.Fatalf("UseGPS error = %v, want ErrAccuracyTooLow", err)
	}
	if err := flow.MapClick(44.4, 8.9); err != nil {
		t.Fatalf("MapClick failed: %v", err)
	}

	snap := flow.Snapshot()
	if snap.Candidate == nil || snap.Candidate.Lat != 44.4 {
		t.Fatalf("candidate = %+v, want the click", snap.Candidate)
	}
	if snap.Accuracy != nil || snap.Err != nil || !snap.CanConfirm {
		t.Errorf("snapshot = %+v, want confirmable pick without accuracy or error", snap)
	}
}

func TestMapClickDropsReadingInFlight(t *testing.T) {
	provider := &sequenceProvider{accuracies: []float64{3}, block: make(chan struct{})}
	flow := NewFlow(Deps{Provider: provider, Gateway: &fakeGateway{}})

	flow.StartPicking()
	if err := flow.MapClick(1, 1); err != nil {
		t.Fatalf("MapClick failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := flow.UseGPS(context.Background())
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !flow.Snapshot().Acquiring {
		if time.Now().After(deadline) {
			t.Fatal("acquisition never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := flow.MapClick(2, 2); err != nil {
		t.Fatalf("MapClick during acquisition failed: %v", err)
	}
	close(provider.block)

	if err := <-done; !errors.Is(err, ErrCanceled) {
		t.Errorf("UseGPS error = %v, want ErrCanceled", err)
	}
	snap := flow.Snapshot()
	if snap.Candidate == nil || snap.Candidate.Lat != 2 || snap.Accuracy != nil || snap.Acquiring {
		t.Errorf("stale reading applied: %+v", snap)
	}
}

func TestMapClickDuringSubmission(t *testing.T) {
	gateway := &fakeGateway{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	flow := NewFlow(Deps{Gateway: gateway})

	flow.StartPicking()
	if err := flow.MapClick(3, 3); err != nil {
		t.Fatalf("MapClick failed: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := flow.Confirm(context.Background())
		done <- err
	}()
	<-gateway.entered

	if err := flow.MapClick(4, 4); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("MapClick during submission = %v, want ErrSubmissionInFlight", err)
	}
	close(gateway.release)
	if err := <-done; err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if all := flow.Store().All(); len(all) != 1 || all[0].Lat != 3 {
		t.Errorf("store = %+v, want the original candidate", all)
	}
}

func TestExplicitZeroThreshold(t *testing.T) {
	gate := AccuracyGate{Threshold: 0}
	flow := NewFlow(Deps{Provider: &sequenceProvider{accuracies: []float64{5}}, Gate: &gate})

	if _, err := flow.UseGPS(context.Background()); !errors.Is(err, ErrAccuracyTooLow) {
		t.Fatalf("UseGPS error = %v, want ErrAccuracyTooLow", err)
	}
	if flow.Snapshot().CanConfirm {
		t.Error("a 5 m reading must not pass a zero threshold")
	}

	if NewFlow(Deps{}).gate.Threshold != DefaultAccuracyThreshold {
		t.Error("nil gate should use the default threshold")
	}
}

func TestDoubleConfirmSubmitsOnce(t *testing.T) {
	gateway := &fakeGateway{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	flow := NewFlow(Deps{Gateway: gateway, Fetcher: &fakeFetcher{}})
	ctx := context.Background()

	flow.StartPicking()
	if err := flow.MapClick(3, 4); err != nil {
		t.Fatalf("MapClick failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := flow.Confirm(ctx)
		done <- err
	}()
	<-gateway.entered

	if _, err := flow.Confirm(ctx); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("second Confirm: got %v, want ErrSubmissionInFlight", err)
	}
	if !flow.Snapshot().Submitting {
		t.Error("snapshot should report submission in flight")
	}

	close(gateway.release)
	if err := <-done; err != nil {
		t.Fatalf("first Confirm failed: %v", err)
	}
	if n := gateway.calls.Load(); n != 1 {
		t.Errorf("gateway called %d times, want 1", n)
	}
	if flow.Store().Len() != 1 {
		t.Errorf("store has %d markers, want 1", flow.Store().Len())
	}
}

func TestSubmissionFailureKeepsCandidate(t *testing.T) {
	cause := errors.New("server said no")
	flow := NewFlow(Deps{Gateway: &fakeGateway{err: cause}})

	flow.StartPicking()
	if err := flow.MapClick(5, 6); err != nil {
		t.Fatalf("MapClick failed: %v", err)
	}
	_, err := flow.Confirm(context.Background())
	if !errors.Is(err, ErrSubmissionFailed) || !errors.Is(err, cause) {
		t.Fatalf("Confirm error = %v, want ErrSubmissionFailed wrapping cause", err)
	}

	snap := flow.Snapshot()
	if snap.State != Confirming || snap.Candidate == nil || snap.Candidate.Lat != 5 {
		t.Errorf("candidate should be preserved, snapshot = %+v", snap)
	}
	if !snap.CanConfirm || snap.Err == nil {
		t.Errorf("expected retry to be possible with error shown, snapshot = %+v", snap)
	}
	if flow.Store().Len() != 0 {
		t.Error("store must not change on failure")
	}
}

func TestCanceledSubmissionIsDiscarded(t *testing.T) {
	gateway := &fakeGateway{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	flow := NewFlow(Deps{Gateway: gateway})

	flow.StartPicking()
	if err := flow.MapClick(7, 8); err != nil {
		t.Fatalf("MapClick failed: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := flow.Confirm(context.Background())
		done <- err
	}()
	<-gateway.entered

	flow.Cancel()
	close(gateway.release)

	if err := <-done; !errors.Is(err, ErrCanceled) {
		t.Errorf("Confirm error = %v, want ErrCanceled", err)
	}
	if flow.Store().Len() != 0 {
		t.Error("stale submission must not reach the store")
	}
	if snap := flow.Snapshot(); snap.State != Idle || snap.Submitting {
		t.Errorf("snapshot = %+v, want idle", snap)
	}
}

func TestCanceledGPSReadingIsDiscarded(t *testing.T) {
	provider := &sequenceProvider{accuracies: []float64{3}, block: make(chan struct{})}
	flow := NewFlow(Deps{Provider: provider, Gateway: &fakeGateway{}})

	done := make(chan error, 1)
	go func() {
		_, err := flow.UseGPS(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !flow.Snapshot().Acquiring {
		if time.Now().After(deadline) {
			t.Fatal("acquisition never started")
		}
		time.Sleep(time.Millisecond)
	}
	flow.StartPicking()
	close(provider.block)

	if err := <-done; !errors.Is(err, ErrCanceled) {
		t.Errorf("UseGPS error = %v, want ErrCanceled", err)
	}
	snap := flow.Snapshot()
	if snap.State != Picking || snap.Candidate != nil {
		t.Errorf("stale reading applied: %+v", snap)
	}
}

func TestGPSFailureSurfacesError(t *testing.T) {
	failure := &geo.UnavailableError{Reason: geo.PermissionDenied}
	flow := NewFlow(Deps{Provider: &sequenceProvider{err: failure}})

	_, err := flow.UseGPS(context.Background())
	if !errors.Is(err, geo.ErrLocationUnavailable) {
		t.Fatalf("UseGPS error = %v, want ErrLocationUnavailable", err)
	}
	snap := flow.Snapshot()
	if snap.State != Idle || snap.Acquiring || snap.Err == nil {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestLoadFailureKeepsStore(t *testing.T) {
	store := NewMarkerStore()
	store.Seed([]models.Marker{{ID: "cached"}})
	flow := NewFlow(Deps{Fetcher: &fakeFetcher{err: errors.New("offline")}, Store: store})

	if err := flow.Load(context.Background()); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("Load error = %v, want ErrFetchFailed", err)
	}
	if all := store.All(); len(all) != 1 || all[0].ID != "cached" {
		t.Errorf("store = %+v, want untouched", all)
	}
	if flow.Snapshot().Err == nil {
		t.Error("load error should be visible in snapshot")
	}
}
