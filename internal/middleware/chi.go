package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// EdgeConfig configures CORS and rate limiting.
type EdgeConfig struct {
	CORSAllowedOrigins []string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
	RateLimitOnLimit  http.HandlerFunc
}

// CORS allows browser and native-shell origins to reach the API.
func CORS(cfg EdgeConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Authorization", "Content-Type",
			"Connect-Protocol-Version", "Connect-Timeout-Ms",
		},
		ExposedHeaders:   []string{"Connect-Protocol-Version", "Connect-Timeout-Ms", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

// RateLimit limits requests per client IP.
func RateLimit(cfg EdgeConfig) func(http.Handler) http.Handler {
	if cfg.RateLimitDisabled || cfg.RateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	opts := []httprate.Option{httprate.WithKeyFuncs(httprate.KeyByIP)}
	if cfg.RateLimitOnLimit != nil {
		opts = append(opts, httprate.WithLimitHandler(cfg.RateLimitOnLimit))
	}
	return httprate.Limit(cfg.RateLimitRequests, cfg.RateLimitWindow, opts...)
}
