package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/auth"
	"github.com/starford/quire/internal/pages"
	"github.com/starford/quire/internal/ratelimit"
)

// Deps holds everything the API routes need. Optional fields may be nil:
// a nil Auth disables authentication, nil limiters disable rate limiting and
// a nil Events handler leaves /events unmounted.
type Deps struct {
	Pages       *pages.Store
	Auth        *auth.Service
	Events      http.Handler
	APILimiter  *ratelimit.Limiter
	AuthLimiter *ratelimit.Limiter
	Version     string
	Started     time.Time
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all API routes mounted. The caller
// mounts it under /api.
func NewRouter(d Deps) chi.Router {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Started.IsZero() {
		d.Started = time.Now()
	}
	h := NewHandler(d)

	r := chi.NewRouter()
	r.Use(RateLimit(d.APILimiter, "Too many requests from this IP, please try again later."))

	// Health checks (unauthenticated).
	r.Get("/health", h.Health)
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Live)

	r.Route("/auth", func(r chi.Router) {
		r.Use(RateLimit(d.AuthLimiter, "Too many login attempts, please try again later."))
		r.Post("/login", h.Login)
		r.With(AuthMiddleware(d.Auth)).Post("/verify", h.Verify)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(d.Auth))

		// Pages.
		r.Get("/pages", h.Tree)
		r.Get("/pages/*", h.GetPage)
		r.Post("/pages/*", h.SavePage)
		r.Put("/pages/*", h.SavePage)
		r.Delete("/pages/*", h.DeletePage)

		// Search.
		r.Get("/search", h.Search)

		if d.Events != nil {
			r.Get("/events", d.Events.ServeHTTP)
		}
	})

	return r
}
