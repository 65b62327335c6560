package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miraelabs/consentry-backend/api/routes"
	"github.com/miraelabs/consentry-backend/internal/consents"
	"github.com/miraelabs/consentry-backend/internal/documents"
	"github.com/miraelabs/consentry-backend/internal/policy"
	"github.com/miraelabs/consentry-backend/pkg/config"
	"github.com/miraelabs/consentry-backend/pkg/db"
	"github.com/miraelabs/consentry-backend/pkg/logger"
	"github.com/miraelabs/consentry-backend/pkg/metrics"
	"github.com/miraelabs/consentry-backend/pkg/migrate"
	"github.com/miraelabs/consentry-backend/pkg/outbox"
	"github.com/miraelabs/consentry-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	documentsService, err := documents.NewService(documents.NewRepository(dbClient.DB()), cfg.Consent.BaseLocale)
	if err != nil {
		logg.Error(context.Background(), "failed to create documents service", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	consentMetrics := metrics.NewConsentMetrics(prometheus.DefaultRegisterer)

	policyService, err := policy.NewService(policy.ServiceParams{
		Consents:  consents.NewRepository(dbClient.DB()),
		Documents: documentsService,
		Tx:        dbClient,
		Outbox:    outboxService,
		Cache:     redisClient,
		CacheTTL:  cfg.Consent.RequirementsCacheTTL,
		Metrics:   consentMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create policy service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", routes.NewRouter(cfg, logg, dbClient, redisClient, documentsService, policyService))

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "api server shutdown error", err)
		}
	}

	logg.Info(ctx, "api server stopped")
}
