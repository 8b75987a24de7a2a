package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ekrsw/microservice/internal/cache"
	"github.com/ekrsw/microservice/internal/config"
	"github.com/ekrsw/microservice/internal/database"
	"github.com/ekrsw/microservice/internal/handlers"
	"github.com/ekrsw/microservice/internal/log"
	"github.com/ekrsw/microservice/internal/metrics"
	"github.com/ekrsw/microservice/internal/queue"
	"github.com/ekrsw/microservice/internal/repository"
	"github.com/ekrsw/microservice/internal/server"
	"github.com/ekrsw/microservice/internal/service"
	"github.com/ekrsw/microservice/internal/tasks"
)

func main() {
	cfg, err := config.Load("worker")
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Service, cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, database.PostsMigrations)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	collector := metrics.NewCollector("worker", registry)

	posts := service.NewPostService(repository.NewPostRepository(dbPool), nil, logger)
	processor := tasks.NewProcessor(posts, collector, logger)
	consumer := queue.NewConsumer(client, queue.Options{
		Stream:        cfg.Events.Stream,
		Group:         cfg.Events.Group,
		Consumer:      cfg.Events.Consumer,
		ClaimInterval: cfg.Events.ClaimInterval,
		MinIdle:       cfg.Events.MinIdle,
	}, logger, processor)

	httpServer := server.NewHTTPServer(cfg, logger, handlers.HealthRoutes{
		Checks: []handlers.HealthCheck{
			{Name: "postgres", Ping: dbPool.Ping},
			{Name: "redis", Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() }},
		},
		Environment: cfg.Environment,
		Log:         logger,
	}, collector, registry)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}()

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	time.Sleep(500 * time.Millisecond)
}
