// Package client talks to the Girandola persistence boundary over HTTP. It
// is the submission gateway and marker source used by the capture flow.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mmynk/girandola/internal/models"
)

var (
	ErrFetchFailed        = errors.New("fetch failed")
	ErrSaveFailed         = errors.New("save failed")
	ErrSignInFailed       = errors.New("sign-in failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCoordinates = errors.New("lat and lng must be finite numbers")
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Code   int
	Title  string
	Detail string
}

func (e *StatusError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, msg)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Code == http.StatusUnauthorized
}

type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// Session describes the caller's sign-in state.
type Session struct {
	Authenticated bool         `json:"authenticated"`
	User          *models.User `json:"user,omitempty"`
}

// SignIn is the result of a native sign-in.
type SignIn struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type markerRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type nativeSignInRequest struct {
	IDToken string `json:"idToken"`
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer session token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithBreaker replaces the default circuit breaker settings.
func WithBreaker(settings gobreaker.Settings) Option {
	return func(c *Client) { c.breaker = newBreaker(settings) }
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = newBreaker(DefaultBreakerSettings())
	}
	return c, nil
}

// DefaultBreakerSettings opens after 5 consecutive server or transport
// failures and probes again after 30 seconds.
func DefaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "girandola-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}

func newBreaker(settings gobreaker.Settings) *gobreaker.CircuitBreaker[[]byte] {
	if settings.IsSuccessful == nil {
		// 4xx answers mean the server is healthy.
		settings.IsSuccessful = func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < http.StatusInternalServerError
			}
			return err == nil
		}
	}
	if settings.OnStateChange == nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}
	}
	return gobreaker.NewCircuitBreaker[[]byte](settings)
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Submit creates a marker at lat,lng and returns the server's record verbatim.
func (c *Client) Submit(ctx context.Context, lat, lng float64) (*models.Marker, error) {
	if !finite(lat) || !finite(lng) {
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, ErrInvalidCoordinates)
	}

	var marker models.Marker
	if err := c.call(ctx, http.MethodPost, "/markers", markerRequest{Lat: lat, Lng: lng}, &marker); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return &marker, nil
}

// ListMarkers returns every marker, newest first.
func (c *Client) ListMarkers(ctx context.Context) ([]models.Marker, error) {
	markers := []models.Marker{}
	if err := c.call(ctx, http.MethodGet, "/markers", nil, &markers); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return markers, nil
}

// ExportMine returns the caller's own markers, newest first.
func (c *Client) ExportMine(ctx context.Context) ([]models.Marker, error) {
	markers := []models.Marker{}
	if err := c.call(ctx, http.MethodGet, "/markers/mine/export", nil, &markers); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return markers, nil
}

// Contributors returns the leaderboard.
func (c *Client) Contributors(ctx context.Context) ([]models.Contributor, error) {
	contributors := []models.Contributor{}
	if err := c.call(ctx, http.MethodGet, "/contributors", nil, &contributors); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return contributors, nil
}

func (c *Client) Session(ctx context.Context) (*Session, error) {
	var session Session
	if err := c.call(ctx, http.MethodGet, "/auth/session", nil, &session); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return &session, nil
}

// NativeSignIn exchanges a Google ID token for a session token, which the
// client keeps for later calls.
func (c *Client) NativeSignIn(ctx context.Context, idToken string) (*SignIn, error) {
	var out SignIn
	if err := c.call(ctx, http.MethodPost, "/auth/native", nativeSignInRequest{IDToken: idToken}, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignInFailed, err)
	}
	c.SetToken(out.Token)
	return &out, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, method, path, in)
	})
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Code: resp.StatusCode}
		var p problem
		if json.Unmarshal(data, &p) == nil {
			se.Title = p.Title
			se.Detail = p.Detail
			if se.Detail == "" {
				se.Detail = p.Error
			}
		}
		return nil, se
	}
	return data, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
