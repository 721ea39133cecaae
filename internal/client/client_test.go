package client

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mmynk/girandola/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(server.URL, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "://nope"} {
		if _, err := New(raw); err == nil {
			t.Errorf("New(%q) should fail", raw)
		}
	}
}

func TestSubmitSendsCoordinatesAndToken(t *testing.T) {
	var gotAuth string
	var gotBody markerRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/markers" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Marker{
			ID:         "m-1",
			Lat:        gotBody.Lat,
			Lng:        gotBody.Lng,
			OwnerEmail: "alice@example.com",
			CreatedAt:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		})
	})

	c := newTestClient(t, handler, WithToken("tok"))
	marker, err := c.Submit(context.Background(), 45.5, -73.6)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.Lat != 45.5 || gotBody.Lng != -73.6 {
		t.Errorf("body = %+v", gotBody)
	}
	if marker.ID != "m-1" || marker.OwnerEmail != "alice@example.com" {
		t.Errorf("marker = %+v", marker)
	}
}

func TestSubmitRejectsNonFiniteLocally(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))

	for _, lat := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := c.Submit(context.Background(), lat, 0)
		if !errors.Is(err, ErrInvalidCoordinates) || !errors.Is(err, ErrSaveFailed) {
			t.Errorf("Submit(%v) error = %v", lat, err)
		}
	}
	if hits.Load() != 0 {
		t.Error("invalid coordinates must not reach the server")
	}
}

func TestErrorClasses(t *testing.T) {
	unauthorized := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"title":"Unauthorized","status":401,"detail":"sign in required"}`))
	})
	c := newTestClient(t, unauthorized)
	ctx := context.Background()

	_, err := c.Submit(ctx, 1, 2)
	if !errors.Is(err, ErrSaveFailed) || !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Submit error = %v, want save failed + unauthorized", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Detail != "sign in required" {
		t.Errorf("expected problem detail, got %v", err)
	}

	_, err = c.ExportMine(ctx)
	if !errors.Is(err, ErrFetchFailed) || !errors.Is(err, ErrUnauthorized) {
		t.Errorf("ExportMine error = %v, want fetch failed + unauthorized", err)
	}

	_, err = c.NativeSignIn(ctx, "bad")
	if !errors.Is(err, ErrSignInFailed) {
		t.Errorf("NativeSignIn error = %v, want ErrSignInFailed", err)
	}
}

func TestServerErrorIsFetchFailed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.ListMarkers(context.Background())
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("ListMarkers error = %v, want ErrFetchFailed", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("500 must not look like unauthorized")
	}
}

func TestBreakerOpensOnServerFailures(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	settings := DefaultBreakerSettings()
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 2 }
	settings.Timeout = time.Hour
	c := newTestClient(t, handler, WithBreaker(settings))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.Contributors(ctx); err == nil {
			t.Fatal("expected failure")
		}
	}
	_, err := c.Contributors(ctx)
	if !errors.Is(err, ErrFetchFailed) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want fetch failed from open breaker", err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hit %d times, want 2", hits.Load())
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})
	settings := DefaultBreakerSettings()
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 1 }
	c := newTestClient(t, handler, WithBreaker(settings))

	for i := 0; i < 3; i++ {
		if _, err := c.Submit(context.Background(), 1, 1); !errors.Is(err, ErrSaveFailed) {
			t.Fatalf("Submit error = %v", err)
		}
	}
	if hits.Load() != 3 {
		t.Errorf("server hit %d times, want 3", hits.Load())
	}
}

func TestNativeSignInStoresToken(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/native":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token":"fresh","user":{"id":"u1","email":"a@example.com"}}`))
		case "/auth/session":
			if r.Header.Get("Authorization") != "Bearer fresh" {
				_, _ = w.Write([]byte(`{"authenticated":false}`))
				return
			}
			_, _ = w.Write([]byte(`{"authenticated":true,"user":{"id":"u1","email":"a@example.com"}}`))
		}
	})
	c := newTestClient(t, handler)
	ctx := context.Background()

	out, err := c.NativeSignIn(ctx, "id-token")
	if err != nil {
		t.Fatalf("NativeSignIn failed: %v", err)
	}
	if out.Token != "fresh" || c.Token() != "fresh" {
		t.Errorf("token not kept: %+v / %q", out, c.Token())
	}

	session, err := c.Session(ctx)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if !session.Authenticated || session.User.Email != "a@example.com" {
		t.Errorf("session = %+v", session)
	}
}
