package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/girandola/internal/api"
	"github.com/mmynk/girandola/internal/auth"
	"github.com/mmynk/girandola/internal/config"
	"github.com/mmynk/girandola/internal/middleware"
	"github.com/mmynk/girandola/internal/service"
	"github.com/mmynk/girandola/internal/storage"
	"github.com/mmynk/girandola/internal/storage/badgerkv"
	"github.com/mmynk/girandola/internal/storage/postgres"
	"github.com/mmynk/girandola/internal/storage/sqlite"
	"github.com/mmynk/girandola/internal/supervisor"
	"github.com/mmynk/girandola/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Configure(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer store.Close()

	secret := []byte(cfg.Auth.SessionSecret)
	if len(secret) == 0 {
		generated, err := auth.GenerateSecret()
		if err != nil {
			return err
		}
		secret = []byte(generated)
		slog.Warn("No session secret configured; sessions will not survive a restart")
	}
	sessionKey, err := auth.DeriveKey(secret, auth.PurposeSession)
	if err != nil {
		return err
	}
	stateKey, err := auth.DeriveKey(secret, auth.PurposeLoginState)
	if err != nil {
		return err
	}
	jwtManager := auth.NewJWTManager(sessionKey, cfg.Auth.SessionTTL)
	states := auth.NewStateManager(stateKey, auth.DefaultStateTTL)

	// provider stays a nil interface when Google is not configured.
	var provider auth.Provider
	if cfg.Auth.GoogleEnabled() {
		google, err := auth.NewGoogleProvider(ctx, auth.GoogleConfig{
			Issuer:       cfg.Auth.GoogleIssuer,
			ClientID:     cfg.Auth.GoogleClientID,
			ClientSecret: cfg.Auth.GoogleClientSecret,
			RedirectURL:  strings.TrimRight(cfg.Server.PublicURL, "/") + "/auth/callback",
		})
		if err != nil {
			return fmt.Errorf("google sign-in: %w", err)
		}
		provider = google
		slog.Info("Google sign-in enabled", "issuer", cfg.Auth.GoogleIssuer)
	} else {
		slog.Warn("Google sign-in disabled; set GOOGLE_CLIENT_ID to enable it")
	}

	staticDir, err := filepath.Abs(cfg.Server.StaticDir)
	if err != nil {
		return fmt.Errorf("resolve static path: %w", err)
	}
	slog.Info("Serving static files", "path", staticDir)

	router := api.NewRouter(api.Deps{
		Store:        store,
		Markers:      service.NewMarkerService(store),
		Auth:         service.NewAuthService(store, provider, jwtManager, states),
		JWTManager:   jwtManager,
		CookieName:   cfg.Auth.CookieName,
		CookieSecure: cfg.Auth.CookieSecure,
		StaticDir:    staticDir,
		Edge: middleware.EdgeConfig{
			CORSAllowedOrigins: cfg.Security.CORSOrigins,
			RateLimitRequests:  cfg.Security.RateLimitRequests,
			RateLimitWindow:    cfg.Security.RateLimitWindow,
			RateLimitDisabled:  cfg.Security.RateLimitDisabled,
		},
	})

	// h2c lets Connect clients use HTTP/2 without TLS.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	tree := supervisor.New(logger, supervisor.Config{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.Add(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	tree.Add(supervisor.NewStoreMonitor(store, 30*time.Second))

	slog.Info("Girandola server starting",
		"address", server.Addr,
		"url", cfg.Server.PublicURL,
		"driver", cfg.Database.Driver,
	)
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := postgres.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", cfg.Driver)
		return store, nil
	case config.DriverBadger:
		store, err := badgerkv.Open(cfg.BadgerDir)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", cfg.Driver, "dir", cfg.BadgerDir)
		return store, nil
	default:
		store, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", config.DriverSQLite, "database", cfg.Path)
		return store, nil
	}
}
