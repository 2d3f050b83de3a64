package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/redis/go-redis/v9"

	"github.com/worklens/worklens/internal/compliance"
	"github.com/worklens/worklens/internal/obs"
	"github.com/worklens/worklens/internal/transport/middleware"
	"github.com/worklens/worklens/internal/transport/swagger"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, redisClient *redis.Client, complianceHandler *compliance.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db, redisClient)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(obs.Instrument)

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Prometheus scrape endpoint
	router.Handle("/metrics", obs.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/compliance", func(cr chi.Router) {
			cr.Post("/check", complianceHandler.RunCheck)
			cr.Get("/runs/{id}", complianceHandler.GetRun)
			cr.Get("/overview", complianceHandler.Overview)
			cr.Get("/trends", complianceHandler.Trends)

			cr.Route("/violations", func(vr chi.Router) {
				vr.Get("/", complianceHandler.ListViolations)
				vr.Patch("/{id}/status", complianceHandler.UpdateViolationStatus)
			})

			cr.Route("/config", func(cfr chi.Router) {
				cfr.Get("/", complianceHandler.GetConfig)
				cfr.Patch("/", complianceHandler.UpdateConfig)
			})
		})
	})
}
