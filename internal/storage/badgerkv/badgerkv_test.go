package badgerkv

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/mmynk/girandola/internal/models"
	"github.com/mmynk/girandola/internal/storage"
	"github.com/mmynk/girandola/internal/storage/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return store
}

func TestBadgerStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return newTestStore(t)
	})
}

func TestOnDiskStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	user, err := store.UpsertUser(ctx, models.NewUser("frank@example.com", "Frank", ""))
	if err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	created, err := store.CreateMarker(ctx, user.ID, 41.9, 12.5)
	if err != nil {
		t.Fatalf("CreateMarker failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	markers, err := reopened.ListMarkersByOwner(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListMarkersByOwner failed: %v", err)
	}
	if len(markers) != 1 || markers[0].ID != created.ID {
		t.Fatalf("markers = %+v, want the created marker", markers)
	}
}

func TestMarkerKeysSortByTime(t *testing.T) {
	early := markerKey(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMicro(), "b")
	late := markerKey(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMicro(), "a")

	if bytes.Compare(early, late) >= 0 {
		t.Errorf("expected %s to sort before %s", early, late)
	}
}

func TestOwnerFromKey(t *testing.T) {
	key := ownerKey("3f1c7a7e-user", 1700000000000000, "marker-id")

	got, ok := ownerFromKey(key)
	if !ok {
		t.Fatal("expected owner to be parsed")
	}
	if got != "3f1c7a7e-user" {
		t.Errorf("owner = %q, want 3f1c7a7e-user", got)
	}
}

func TestPingAfterClose(t *testing.T) {
	store := newTestStore(t)
	store.Close()

	if err := store.Ping(context.Background()); err == nil {
		t.Error("expected Ping to fail on a closed store")
	}
}
