// Package api wires the HTTP surface: the REST persistence boundary, the
// sign-in endpoints, protected pages, the RPC service and operational routes.
package api

import (
	"net/http"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mmynk/girandola/internal/auth"
	"github.com/mmynk/girandola/internal/metrics"
	"github.com/mmynk/girandola/internal/middleware"
	"github.com/mmynk/girandola/internal/service"
	"github.com/mmynk/girandola/internal/storage"
)

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Store      storage.Store
	Markers    *service.MarkerService
	Auth       *service.AuthService
	JWTManager *auth.JWTManager

	CookieName   string
	CookieSecure bool
	StaticDir    string
	Edge         middleware.EdgeConfig
}

// Server holds the handlers; see NewRouter.
type Server struct {
	deps Deps
}

// NewRouter builds the complete HTTP handler.
func NewRouter(deps Deps) http.Handler {
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Session(deps.JWTManager, deps.CookieName))
	r.Use(middleware.RequestLogger)
	r.Use(metrics.Middleware)
	r.Use(middleware.CORS(deps.Edge))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(deps.Edge))

		r.Get("/markers", s.handleListMarkers)
		r.Post("/markers", s.handleCreateMarker)
		r.Get("/markers/mine/export", s.handleExportMine)
		r.Get("/contributors", s.handleContributors)

		r.Get("/auth/login", s.handleLogin)
		r.Get("/auth/callback", s.handleCallback)
		r.Post("/auth/native", s.handleNativeSignIn)
		r.Get("/auth/session", s.handleSession)
		r.Post("/auth/logout", s.handleLogout)

		rpcPath, rpcHandler := service.NewMarkerServiceHandler(
			service.NewMarkerRPC(deps.Markers),
			connect.WithInterceptors(
				middleware.OptionalAuth(deps.JWTManager),
				middleware.LoggingInterceptor(),
			),
		)
		r.Handle(rpcPath+"*", rpcHandler)
	})

	r.NotFound(middleware.RequireLogin(http.HandlerFunc(s.handlePages)).ServeHTTP)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		WriteProblem(w, http.StatusServiceUnavailable, "Not ready", "storage not reachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
