package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mmynk/girandola/internal/models"
)

type fakeProvider struct {
	profiles map[string]*Profile
}

func (p *fakeProvider) AuthURL(state, verifier string) string {
	return "https://idp.example/authorize?state=" + state
}

func (p *fakeProvider) Exchange(ctx context.Context, code, verifier string) (*Profile, error) {
	return p.VerifyIDToken(ctx, code)
}

func (p *fakeProvider) VerifyIDToken(ctx context.Context, idToken string) (*Profile, error) {
	profile, ok := p.profiles[idToken]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return profile, nil
}

type memoryUsers struct {
	mu      sync.Mutex
	byEmail map[string]*models.User
}

func (m *memoryUsers) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byEmail == nil {
		m.byEmail = map[string]*models.User{}
	}
	if existing, ok := m.byEmail[user.Email]; ok {
		if user.Name != "" {
			existing.Name = user.Name
		}
		return existing, nil
	}
	u := *user
	u.ID = "id-" + user.Email
	m.byEmail[user.Email] = &u
	return &u, nil
}

func (m *memoryUsers) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, errors.New("not found")
}

func TestIDTokenAuthenticator(t *testing.T) {
	provider := &fakeProvider{profiles: map[string]*Profile{
		"good":     {Email: "bob@example.com", Name: "Bob"},
		"no-email": {Name: "Ghost"},
	}}
	users := &memoryUsers{}
	a := NewIDTokenAuthenticator(provider, users)
	ctx := context.Background()

	first, err := a.Authenticate(ctx, "good")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	second, err := a.Authenticate(ctx, "good")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("repeat sign-in created a new user: %s vs %s", first.ID, second.ID)
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "", ErrMissingToken},
		{"rejected", "forged", ErrInvalidCredentials},
		{"no email", "no-email", ErrEmailMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Authenticate(ctx, tt.token); !errors.Is(err, tt.want) {
				t.Errorf("Authenticate(%q) error = %v, want %v", tt.token, err, tt.want)
			}
		})
	}
}

func TestIDTokenAuthenticatorWithoutProvider(t *testing.T) {
	a := NewIDTokenAuthenticator(nil, &memoryUsers{})
	if _, err := a.Authenticate(context.Background(), "anything"); !errors.Is(err, ErrProviderDisabled) {
		t.Errorf("expected ErrProviderDisabled, got %v", err)
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) != nil {
		t.Fatal("empty context should carry no identity")
	}
	id := IdentityFromUser(&models.User{ID: "u1", Email: "u1@example.com"})
	if got := FromContext(NewContext(ctx, id)); got != id {
		t.Errorf("FromContext = %+v, want %+v", got, id)
	}
}
