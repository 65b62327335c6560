package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/miraelabs/consentry-backend/api/responses"
	"github.com/miraelabs/consentry-backend/pkg/config"
	"github.com/miraelabs/consentry-backend/pkg/db"
	pkgerrors "github.com/miraelabs/consentry-backend/pkg/errors"
	"github.com/miraelabs/consentry-backend/pkg/logger"
	"github.com/miraelabs/consentry-backend/pkg/redis"
)

const readinessTimeout = 3 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Consentry-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady checks the dependencies the API cannot serve without. Nil
// pingers are skipped so partial deployments stay readable.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, cache redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		w.Header().Set("X-Consentry-Env", cfg.App.Env)

		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database not ready"))
				return
			}
		}
		if cache != nil {
			if err := cache.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cache not ready"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
