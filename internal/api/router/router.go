package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/virevamind/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/virevamind/internal/http/middleware"
	"github.com/wolfman30/virevamind/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Therapists         *handlers.TherapistHandler
	Bookings           *handlers.BookingHandler
	Verification       *handlers.VerificationHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	ReadinessChecks    map[string]handlers.Pinger
	HoldLimiter        *httpmiddleware.RateLimiter
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.Health)
		if len(cfg.ReadinessChecks) > 0 {
			public.Get("/ready", handlers.Ready(cfg.ReadinessChecks))
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		if cfg.Therapists != nil {
			public.Route("/therapists", func(r chi.Router) {
				r.Get("/", cfg.Therapists.Search)
				r.Get("/{id}", cfg.Therapists.Get)
				r.Get("/{id}/slots", cfg.Therapists.ListSlots)
			})
		}

		if cfg.Bookings != nil {
			public.Route("/holds", func(r chi.Router) {
				if cfg.HoldLimiter != nil {
					r.With(cfg.HoldLimiter.Middleware).Post("/", cfg.Bookings.Reserve)
				} else {
					r.Post("/", cfg.Bookings.Reserve)
				}
				r.Get("/{token}", cfg.Bookings.GetHold)
				r.Delete("/{token}", cfg.Bookings.Release)
				r.Post("/{token}/confirm", cfg.Bookings.Confirm)
			})
			public.Route("/bookings", func(r chi.Router) {
				r.Get("/{token}", cfg.Bookings.GetBooking)
				r.Delete("/{token}", cfg.Bookings.Cancel)
			})
		}
	})

	// Admin routes (protected by HMAC JWT)
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin/therapists/{id}", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.Therapists != nil {
				admin.Put("/", cfg.Therapists.Upsert)
				admin.Post("/slots", cfg.Therapists.AddSlot)
			}
			if cfg.Verification != nil {
				admin.Post("/verification", cfg.Verification.Submit)
			}
		})
	}

	return r
}
