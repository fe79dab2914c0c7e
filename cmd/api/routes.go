package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"ledgerline/internal/shared/config"
	"ledgerline/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	if cfg.Telemetry.Enabled {
		r.Use(middleware.Telemetry(cfg.Telemetry.ServiceName))
	}
	r.Use(middleware.Tracing)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.Server.AllowedHosts))
	r.Use(middleware.SecurityHeaders)
	if cfg.TLS.Enabled {
		r.Use(middleware.RequireHTTPS(cfg.Server.AllowedHosts))
		r.Use(middleware.HSTS)
		logger.Info().Msg("TLS security middleware enabled (HTTPS redirect + HSTS)")
	}

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(deps.JWT))

		r.Route("/files/{fileID}", func(r chi.Router) {
			r.Get("/", deps.StatementHandler.HandleGetFile)
			r.Post("/statement", deps.StatementHandler.HandleIngestStatement)
			r.Post("/process", deps.StatementHandler.HandleProcessFile)
		})

		r.Get("/transactions", deps.TransactionHandler.HandleListTransactions)
		r.Post("/transactions/categorize", deps.TransactionHandler.HandleCategorize)
		r.Patch("/transactions/{id}", deps.TransactionHandler.HandleUpdateTransaction)
		r.Post("/transfers/detect", deps.TransactionHandler.HandleDetectTransfers)

		r.Post("/resolve/vendor", deps.CategorizationHandler.HandleResolveVendor)
		r.Post("/resolve/category", deps.CategorizationHandler.HandleResolveCategory)
		r.Post("/corrections/vendor", deps.CategorizationHandler.HandleVendorCorrection)
		r.Post("/corrections/category", deps.CategorizationHandler.HandleCategoryCorrection)
		r.Get("/categories", deps.CategorizationHandler.HandleListCategories)

		r.Post("/devices", deps.NotificationHandler.HandleRegisterDevice)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
