package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ekrsw/microservice/internal/authclient"
	"github.com/ekrsw/microservice/internal/config"
	"github.com/ekrsw/microservice/internal/database"
	"github.com/ekrsw/microservice/internal/handlers"
	"github.com/ekrsw/microservice/internal/log"
	"github.com/ekrsw/microservice/internal/metrics"
	"github.com/ekrsw/microservice/internal/repository"
	"github.com/ekrsw/microservice/internal/security"
	"github.com/ekrsw/microservice/internal/server"
	"github.com/ekrsw/microservice/internal/service"
)

func main() {
	cfg, err := config.Load("posts")
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Service, cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, database.PostsMigrations)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	// Posts only verifies tokens; the private key is never needed here.
	keys, err := security.LoadKeyConfig(cfg.Security)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load verification keys")
	}
	verifier, err := security.NewVerifier(keys, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build token verifier")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector("posts", registry)

	posts := service.NewPostService(repository.NewPostRepository(dbPool), nil, logger)

	routes := handlers.NewPostsHandlers(handlers.PostsDeps{
		Posts:       posts,
		Proxy:       authclient.New(cfg.Identity, logger),
		Verifier:    verifier,
		Checks:      []handlers.HealthCheck{{Name: "postgres", Ping: dbPool.Ping}},
		Environment: cfg.Environment,
		Log:         logger,
	})
	httpServer := server.NewHTTPServer(cfg, logger, routes, collector, registry)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server exited cleanly")
}
