package middleware

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/girandola/internal/auth"
)

// GetUserID returns the authenticated user ID from the context, or "".
func GetUserID(ctx context.Context) string {
	if id := auth.FromContext(ctx); id != nil {
		return id.UserID
	}
	return ""
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// TokenFromRequest returns the session token from the Authorization header,
// falling back to the session cookie.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// Session resolves the caller's identity from a bearer token or the session
// cookie. Requests without a valid token pass through anonymously; handlers
// decide whether a session is required.
func Session(jwtManager *auth.JWTManager, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r, cookieName)
			if token != "" {
				if claims, err := jwtManager.Validate(token); err == nil {
					r = r.WithContext(auth.NewContext(r.Context(), claims.Identity()))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAuth returns an interceptor that validates bearer tokens if present,
// but allows requests without authentication. Handlers check the identity.
func OptionalAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			// An identity may already be set by the HTTP session middleware.
			if auth.FromContext(ctx) == nil {
				if token := bearerToken(req.Header().Get("Authorization")); token != "" {
					if claims, err := jwtManager.Validate(token); err == nil {
						ctx = auth.NewContext(ctx, claims.Identity())
					}
				}
			}
			return next(ctx, req)
		}
	}
}
