package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/http/handlers"
	httpmiddleware "github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/http/middleware"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	ChatHandler   *handlers.ChatHandler
	AdminHandler  *handlers.AdminHandler
	HealthHandler *handlers.HealthHandler

	MetricsHandler http.Handler

	JWTSecret      string
	AdminJWTSecret string
	AuthEvents     httpmiddleware.AuthEventRecorder

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		if cfg.HealthHandler != nil {
			public.Get("/health", cfg.HealthHandler.Health)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Conversational endpoints. Identity is optional: anonymous callers get a
	// session keyed by header or IP.
	if cfg.ChatHandler != nil {
		r.Route("/ai", func(ai chi.Router) {
			ai.Use(httpmiddleware.Authenticate(cfg.JWTSecret, cfg.AuthEvents))
			if cfg.RateLimitRPS > 0 {
				ai.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
			}
			ai.Post("/chat", cfg.ChatHandler.Chat)
			ai.Get("/history", cfg.ChatHandler.History)
			ai.Delete("/history", cfg.ChatHandler.ClearHistory)
		})
	}

	// Operational endpoints.
	if cfg.AdminHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			// rebuild-cache authenticates itself with X-Cron-Key so the
			// platform cron can call it without minting JWTs.
			admin.Post("/rebuild-cache", cfg.AdminHandler.RebuildCache)
			admin.With(httpmiddleware.AdminJWT(cfg.AdminJWTSecret)).
				Get("/auth-events", cfg.AdminHandler.AuthEvents)
		})
	}

	return r
}
