package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/mmynk/girandola/internal/auth"
)

// DefaultLocale is used for login redirects from unprefixed paths.
const DefaultLocale = "en"

// DefaultCallback is where a completed sign-in lands without a callbackUrl.
const DefaultCallback = "/dashboard"

// Locales are the supported path prefixes.
var Locales = []string{"en", "it"}

// ProtectedPages need a session; each may be locale prefixed.
var ProtectedPages = []string{"/dashboard", "/export"}

// SplitLocale separates a leading /en or /it segment from path.
// The remainder always starts with "/".
func SplitLocale(path string) (locale, rest string) {
	for _, l := range Locales {
		prefix := "/" + l
		if path == prefix {
			return l, "/"
		}
		if strings.HasPrefix(path, prefix+"/") {
			return l, path[len(prefix):]
		}
	}
	return "", path
}

// IsProtected reports whether path is a page that needs a session.
func IsProtected(path string) bool {
	_, rest := SplitLocale(path)
	for _, p := range ProtectedPages {
		if rest == p || strings.HasPrefix(rest, p+"/") {
			return true
		}
	}
	return false
}

// LoginURL is the login page for the locale of path, remembering path as
// the place to return to.
func LoginURL(path string) string {
	locale, _ := SplitLocale(path)
	if locale == "" {
		locale = DefaultLocale
	}
	return "/" + locale + "/login?callbackUrl=" + url.QueryEscape(path)
}

// SafeCallback keeps callback destinations on this site. Anything that is not
// a plain local path becomes DefaultCallback.
func SafeCallback(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return DefaultCallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return DefaultCallback
	}
	return raw
}

// RequireLogin redirects anonymous visitors of protected pages to the login
// page. Other paths pass through untouched.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsProtected(r.URL.Path) && auth.FromContext(r.Context()) == nil {
			http.Redirect(w, r, LoginURL(r.URL.Path), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
