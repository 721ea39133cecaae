package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidState is returned when the OAuth state cookie is missing,
// tampered with, expired, or does not match the callback.
var ErrInvalidState = errors.New("invalid login state")

// DefaultStateTTL bounds how long a login round trip may take.
const DefaultStateTTL = 10 * time.Minute

// LoginState travels with the browser between /auth/login and /auth/callback.
type LoginState struct {
	State       string
	Verifier    string
	CallbackURL string
}

type stateClaims struct {
	Verifier    string `json:"cv"`
	CallbackURL string `json:"cb,omitempty"`
	jwt.RegisteredClaims
}

// StateManager seals login state into a signed cookie value, so the
// server keeps nothing between the two legs of the flow.
type StateManager struct {
	key []byte
	ttl time.Duration
}

func NewStateManager(key []byte, ttl time.Duration) *StateManager {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateManager{key: key, ttl: ttl}
}

// TTL is the lifetime of issued state.
func (m *StateManager) TTL() time.Duration {
	return m.ttl
}

// Issue creates fresh state and verifier for callbackURL and returns
// the state together with its sealed cookie value.
func (m *StateManager) Issue(callbackURL string) (*LoginState, string, error) {
	state, err := randomToken(16)
	if err != nil {
		return nil, "", fmt.Errorf("generate state: %w", err)
	}
	verifier, err := randomToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate verifier: %w", err)
	}

	now := time.Now()
	claims := stateClaims{
		Verifier:    verifier,
		CallbackURL: callbackURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        state,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	sealed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return nil, "", fmt.Errorf("sign state: %w", err)
	}

	return &LoginState{State: state, Verifier: verifier, CallbackURL: callbackURL}, sealed, nil
}

// Open verifies a sealed cookie value and checks it belongs to state.
func (m *StateManager) Open(sealed, state string) (*LoginState, error) {
	if sealed == "" || state == "" {
		return nil, ErrInvalidState
	}

	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(sealed, claims, func(token *jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.ID != state {
		return nil, fmt.Errorf("%w: state mismatch", ErrInvalidState)
	}

	return &LoginState{State: claims.ID, Verifier: claims.Verifier, CallbackURL: claims.CallbackURL}, nil
}
