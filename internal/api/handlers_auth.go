package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/mmynk/girandola/internal/auth"
	"github.com/mmynk/girandola/internal/middleware"
	"github.com/mmynk/girandola/internal/models"
)

// stateCookie holds the sealed login state between /auth/login and /auth/callback.
const stateCookie = "girandola_login_state"

type nativeSignInRequest struct {
	IDToken string `json:"idToken"`
}

type signInResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type sessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *models.User `json:"user,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	callback := middleware.SafeCallback(r.URL.Query().Get("callbackUrl"))
	redirect, sealed, err := s.deps.Auth.BeginLogin(callback)
	if errors.Is(err, auth.ErrProviderDisabled) {
		WriteProblem(w, http.StatusServiceUnavailable, "Sign-in unavailable", "no identity provider is configured")
		return
	}
	if err != nil {
		WriteProblem(w, http.StatusInternalServerError, "Internal error", "failed to start sign-in")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    sealed,
		Path:     "/auth",
		MaxAge:   s.deps.Auth.StateTTL(),
		HttpOnly: true,
		Secure:   s.deps.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Auth.Enabled() {
		WriteProblem(w, http.StatusServiceUnavailable, "Sign-in unavailable", "no identity provider is configured")
		return
	}
	// The state cookie is single use.
	s.clearCookie(w, stateCookie, "/auth")

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		WriteProblem(w, http.StatusUnauthorized, "Sign-in failed", e)
		return
	}
	sealed := ""
	if c, err := r.Cookie(stateCookie); err == nil {
		sealed = c.Value
	}

	result, err := s.deps.Auth.CompleteLogin(r.Context(), q.Get("code"), q.Get("state"), sealed)
	if err != nil {
		WriteProblem(w, http.StatusUnauthorized, "Sign-in failed", "could not verify the sign-in")
		return
	}

	s.setSession(w, result.Token)
	http.Redirect(w, r, middleware.SafeCallback(result.CallbackURL), http.StatusFound)
}

func (s *Server) handleNativeSignIn(w http.ResponseWriter, r *http.Request) {
	var req nativeSignInRequest
	if err := decodeJSON(w, r, &req); err != nil || req.IDToken == "" {
		WriteProblem(w, http.StatusBadRequest, "Bad request", "idToken is required")
		return
	}

	result, err := s.deps.Auth.NativeSignIn(r.Context(), req.IDToken)
	switch {
	case errors.Is(err, auth.ErrProviderDisabled):
		WriteProblem(w, http.StatusServiceUnavailable, "Sign-in unavailable", "no identity provider is configured")
		return
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrEmailMissing), errors.Is(err, auth.ErrMissingToken):
		WriteProblem(w, http.StatusUnauthorized, "Sign-in failed", err.Error())
		return
	case err != nil:
		WriteProblem(w, http.StatusInternalServerError, "Internal error", "failed to sign in")
		return
	}

	s.setSession(w, result.Token)
	writeJSON(w, http.StatusOK, signInResponse{Token: result.Token, User: result.User})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Auth.CurrentUser(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		WriteProblem(w, http.StatusInternalServerError, "Internal error", "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Authenticated: user != nil, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearCookie(w, s.deps.CookieName, "/")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.deps.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   s.deps.Auth.SessionTTL(),
		HttpOnly: true,
		Secure:   s.deps.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.deps.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
