package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, health *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health (no auth)
	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/promotions", func(r chi.Router) {
			r.Get("/", h.ListPromotions)
			r.Post("/", h.CreatePromotion)
			// registered before /{id} so these are never taken as an id
			r.Post("/sweep", h.TriggerSweep)
			r.Get("/deleted", h.ListDeletedPromotions)
			r.Get("/{id}", h.GetPromotion)
			r.Put("/{id}", h.UpdatePromotion)
			r.Delete("/{id}", h.DeletePromotion)
			r.Post("/{id}/restore", h.RestorePromotion)
			r.Delete("/{id}/permanent", h.PurgePromotion)
			r.Get("/{id}/notifications", h.GetPromotionNotifications)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/consent", h.UpsertConsent)
			r.Get("/consent/{userID}/{channel}", h.GetConsent)
			r.Get("/status", h.GetStatus)
			r.Get("/failed", h.GetFailedDispatches)
			r.Get("/rate-limit/{userID}/{channel}", h.GetRateLimitUsage)
		})
	})

	return r
}
