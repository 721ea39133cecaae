// Package storetest holds behavior tests shared by every storage.Store backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mmynk/girandola/internal/models"
	"github.com/mmynk/girandola/internal/storage"
)

// Factory returns a fresh, empty store. The test closes it.
type Factory func(t *testing.T) storage.Store

// Run exercises the storage.Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("UpsertUser creates then finds by email", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		created, err := store.UpsertUser(ctx, models.NewUser("alice@example.com", "Alice", ""))
		if err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}
		if created.ID == "" {
			t.Error("Expected user ID to be generated")
		}
		if created.CreatedAt == 0 {
			t.Error("Expected CreatedAt to be set")
		}

		again, err := store.UpsertUser(ctx, models.NewUser("alice@example.com", "", "https://img.example/a.png"))
		if err != nil {
			t.Fatalf("second UpsertUser failed: %v", err)
		}
		if again.ID != created.ID {
			t.Errorf("ID changed on upsert: got %s, want %s", again.ID, created.ID)
		}
		if again.Name != "Alice" {
			t.Errorf("Name should be kept when empty: got %q", again.Name)
		}
		if again.Image != "https://img.example/a.png" {
			t.Errorf("Image should be refreshed: got %q", again.Image)
		}

		byID, err := store.GetUserByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetUserByID failed: %v", err)
		}
		if byID.Email != "alice@example.com" {
			t.Errorf("Email mismatch: got %s", byID.Email)
		}
	})

	t.Run("GetUser returns ErrNotFound", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		if _, err := store.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetUserByEmail error = %v, want ErrNotFound", err)
		}
		if _, err := store.GetUserByID(ctx, "nonexistent-id"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetUserByID error = %v, want ErrNotFound", err)
		}
	})

	t.Run("CreateMarker assigns id, owner and timestamp", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		user := mustUser(t, store, "bob@example.com", "Bob")
		before := time.Now().Truncate(time.Microsecond)

		marker, err := store.CreateMarker(ctx, user.ID, 45.07, 7.69)
		if err != nil {
			t.Fatalf("CreateMarker failed: %v", err)
		}
		if marker.ID == "" {
			t.Error("Expected marker ID to be generated")
		}
		if marker.OwnerEmail != "bob@example.com" {
			t.Errorf("OwnerEmail = %q, want bob@example.com", marker.OwnerEmail)
		}
		if marker.CreatedAt.Before(before) {
			t.Errorf("CreatedAt %v is before the submission time %v", marker.CreatedAt, before)
		}
		if marker.Lat != 45.07 || marker.Lng != 7.69 {
			t.Errorf("coordinates = (%v, %v), want (45.07, 7.69)", marker.Lat, marker.Lng)
		}
	})

	t.Run("CreateMarker rejects unknown owner", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		_, err := store.CreateMarker(context.Background(), "ghost", 1, 2)
		if !errors.Is(err, storage.ErrUnknownUser) {
			t.Errorf("error = %v, want ErrUnknownUser", err)
		}
	})

	t.Run("ListMarkers is newest first and unscoped", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		alice := mustUser(t, store, "alice@example.com", "Alice")
		bob := mustUser(t, store, "bob@example.com", "Bob")

		var ids []string
		for i, owner := range []*models.User{alice, bob, alice} {
			m, err := store.CreateMarker(ctx, owner.ID, float64(i), float64(i))
			if err != nil {
				t.Fatalf("CreateMarker %d failed: %v", i, err)
			}
			ids = append(ids, m.ID)
			time.Sleep(2 * time.Millisecond)
		}

		markers, err := store.ListMarkers(ctx)
		if err != nil {
			t.Fatalf("ListMarkers failed: %v", err)
		}
		if len(markers) != 3 {
			t.Fatalf("Expected 3 markers, got %d", len(markers))
		}
		for i, want := range []string{ids[2], ids[1], ids[0]} {
			if markers[i].ID != want {
				t.Errorf("markers[%d].ID = %s, want %s", i, markers[i].ID, want)
			}
		}
	})

	t.Run("ListMarkersByOwner only returns the owner's markers", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		alice := mustUser(t, store, "alice@example.com", "Alice")
		bob := mustUser(t, store, "bob@example.com", "Bob")
		mustMarkers(t, store, alice, 2)
		mustMarkers(t, store, bob, 1)

		mine, err := store.ListMarkersByOwner(ctx, alice.ID)
		if err != nil {
			t.Fatalf("ListMarkersByOwner failed: %v", err)
		}
		if len(mine) != 2 {
			t.Fatalf("Expected 2 markers, got %d", len(mine))
		}
		for _, m := range mine {
			if m.OwnerEmail != "alice@example.com" {
				t.Errorf("unexpected owner %s", m.OwnerEmail)
			}
		}
		if !mine[0].CreatedAt.After(mine[1].CreatedAt) && !mine[0].CreatedAt.Equal(mine[1].CreatedAt) {
			t.Error("Expected newest first")
		}

		empty, err := store.ListMarkersByOwner(ctx, "nobody")
		if err != nil {
			t.Fatalf("ListMarkersByOwner failed: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("Expected no markers, got %d", len(empty))
		}
	})

	t.Run("duplicate submissions create distinct markers", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		user := mustUser(t, store, "carol@example.com", "Carol")
		a, err := store.CreateMarker(ctx, user.ID, 45.0, 7.6)
		if err != nil {
			t.Fatalf("CreateMarker failed: %v", err)
		}
		b, err := store.CreateMarker(ctx, user.ID, 45.0, 7.6)
		if err != nil {
			t.Fatalf("CreateMarker failed: %v", err)
		}
		if a.ID == b.ID {
			t.Error("Expected distinct IDs for identical submissions")
		}
	})

	t.Run("TopContributors ranks by count", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		alice := mustUser(t, store, "alice@example.com", "Alice")
		nameless := mustUser(t, store, "anon@example.com", "")
		mustUser(t, store, "idle@example.com", "Idle")
		mustMarkers(t, store, alice, 1)
		mustMarkers(t, store, nameless, 3)

		top, err := store.TopContributors(ctx, storage.ContributorLimit)
		if err != nil {
			t.Fatalf("TopContributors failed: %v", err)
		}
		if len(top) != 2 {
			t.Fatalf("Expected 2 contributors (idle user excluded), got %d", len(top))
		}
		if top[0].ID != nameless.ID || top[0].Count != 3 || top[0].Rank != 1 {
			t.Errorf("top[0] = %+v, want anon with 3 markers at rank 1", top[0])
		}
		if top[0].Name != models.AnonymousName {
			t.Errorf("top[0].Name = %q, want %q", top[0].Name, models.AnonymousName)
		}
		if top[1].ID != alice.ID || top[1].Count != 1 || top[1].Rank != 2 {
			t.Errorf("top[1] = %+v, want alice with 1 marker at rank 2", top[1])
		}
	})

	t.Run("TopContributors honors limit", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		for i := 0; i < 4; i++ {
			u := mustUser(t, store, fmt.Sprintf("user%d@example.com", i), fmt.Sprintf("User %d", i))
			mustMarkers(t, store, u, i+1)
		}

		top, err := store.TopContributors(ctx, 2)
		if err != nil {
			t.Fatalf("TopContributors failed: %v", err)
		}
		if len(top) != 2 {
			t.Fatalf("Expected 2 contributors, got %d", len(top))
		}
		if top[0].Count != 4 || top[1].Count != 3 {
			t.Errorf("counts = %d, %d; want 4, 3", top[0].Count, top[1].Count)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		if err := store.Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func mustUser(t *testing.T, store storage.Store, email, name string) *models.User {
	t.Helper()
	user, err := store.UpsertUser(context.Background(), models.NewUser(email, name, ""))
	if err != nil {
		t.Fatalf("UpsertUser(%s) failed: %v", email, err)
	}
	return user
}

func mustMarkers(t *testing.T, store storage.Store, owner *models.User, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := store.CreateMarker(context.Background(), owner.ID, 45+float64(i)/100, 7.6); err != nil {
			t.Fatalf("CreateMarker failed: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
}
