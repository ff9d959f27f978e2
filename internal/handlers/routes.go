package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"flatex_bot/internal/middleware"
)

// NewRouter builds the HTTP routes. ctx bounds the rate limiter's
// background cleanup.
func NewRouter(ctx context.Context, deps *Dependencies) http.Handler {
	h := NewHandler(deps)
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Chi middleware (aliased as chimw to avoid conflict with our middleware package)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger.Named("http")))
	r.Use(chimw.Recoverer)
	r.Use(middleware.APIHeaders)

	r.Get("/health", h.Health)
	r.Get("/status", h.Status)

	// Token-protected routes, rate limited against token guessing.
	limiter := middleware.NewRateLimiter(ctx, deps.RatePerSec, deps.RateBurst)
	r.Group(func(r chi.Router) {
		r.Use(limiter.Limit)
		r.Use(middleware.RequireBearer(deps.WebhookToken))
		r.Use(middleware.LimitBody(16 << 10))
		r.Post("/commands", h.Commands)
		r.Get("/audit", h.Audit)
	})

	return r
}
