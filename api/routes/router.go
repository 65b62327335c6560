package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/miraelabs/consentry-backend/api/controllers"
	"github.com/miraelabs/consentry-backend/api/middleware"
	"github.com/miraelabs/consentry-backend/internal/documents"
	"github.com/miraelabs/consentry-backend/internal/policy"
	"github.com/miraelabs/consentry-backend/pkg/config"
	"github.com/miraelabs/consentry-backend/pkg/db"
	"github.com/miraelabs/consentry-backend/pkg/logger"
	"github.com/miraelabs/consentry-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	cache redis.Pinger,
	documentsService documents.Service,
	policyService policy.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, cache))
	})

	// Requirements and document texts are served before any account exists.
	r.Route("/api/public/v1", func(r chi.Router) {
		r.Use(middleware.Locale(logg))
		r.Get("/consent-requirements", controllers.ConsentRequirements(policyService, logg))
		r.Route("/documents", func(r chi.Router) {
			r.Get("/{documentType}/current", controllers.DocumentCurrent(documentsService, logg))
			r.Get("/by-id/{documentID}", controllers.DocumentGet(documentsService, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Locale(logg))

		r.Route("/consents", func(r chi.Router) {
			r.Post("/", controllers.ConsentsCreate(policyService, logg))
			r.Get("/", controllers.ConsentsList(policyService, logg))
			r.Get("/history", controllers.ConsentsHistory(policyService, logg))
			r.Get("/status", controllers.ConsentsStatus(policyService, logg))
			r.Put("/", controllers.ConsentsUpdate(policyService, logg))
		})
	})

	return r
}
