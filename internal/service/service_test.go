package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mmynk/girandola/internal/auth"
	"github.com/mmynk/girandola/internal/models"
	"github.com/mmynk/girandola/internal/storage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustIdentity(t *testing.T, store *sqlite.SQLiteStore, email, name string) *auth.Identity {
	t.Helper()
	user, err := store.UpsertUser(context.Background(), models.NewUser(email, name, ""))
	if err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	return auth.IdentityFromUser(user)
}

func ptr(f float64) *float64 { return &f }
