package auth

import (
	"errors"
	"testing"
	"time"
)

func TestStateManager(t *testing.T) {
	m := NewStateManager([]byte("state-key-state-key-state-key-32"), time.Minute)

	state, sealed, err := m.Issue("/it/dashboard")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if state.State == "" || len(state.Verifier) < 43 {
		t.Fatalf("unexpected state %+v", state)
	}

	t.Run("round trip", func(t *testing.T) {
		got, err := m.Open(sealed, state.State)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if got.Verifier != state.Verifier || got.CallbackURL != "/it/dashboard" {
			t.Errorf("got %+v, want %+v", got, state)
		}
	})

	t.Run("state mismatch", func(t *testing.T) {
		if _, err := m.Open(sealed, "forged"); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("missing cookie", func(t *testing.T) {
		if _, err := m.Open("", state.State); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("other key", func(t *testing.T) {
		other := NewStateManager([]byte("another-key-another-key-another!"), time.Minute)
		if _, err := other.Open(sealed, state.State); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		short := NewStateManager([]byte("state-key-state-key-state-key-32"), -1)
		if short.TTL() != DefaultStateTTL {
			t.Fatalf("TTL = %v, want default", short.TTL())
		}
		past := &StateManager{key: m.key, ttl: -time.Minute}
		s, sealed, err := past.Issue("/")
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if _, err := m.Open(sealed, s.State); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState for expired state, got %v", err)
		}
	})
}
