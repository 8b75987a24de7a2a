package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/cache"
	"github.com/ekrsw/microservice/internal/config"
	"github.com/ekrsw/microservice/internal/database"
	"github.com/ekrsw/microservice/internal/events"
	"github.com/ekrsw/microservice/internal/handlers"
	"github.com/ekrsw/microservice/internal/jobs"
	"github.com/ekrsw/microservice/internal/log"
	"github.com/ekrsw/microservice/internal/metrics"
	"github.com/ekrsw/microservice/internal/middleware"
	"github.com/ekrsw/microservice/internal/repository"
	"github.com/ekrsw/microservice/internal/security"
	"github.com/ekrsw/microservice/internal/server"
	"github.com/ekrsw/microservice/internal/service"
	"github.com/ekrsw/microservice/internal/session"
)

type sessionBackend interface {
	session.Store
	PruneIndexes(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load("identity")
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Service, cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, database.IdentityMigrations)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	var (
		redisClient *redis.Client
		sessions    sessionBackend
		publisher   service.UserEventPublisher
	)
	redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
	switch {
	case errors.Is(err, cache.ErrNotConfigured):
		logger.Warn().Msg("redis not configured, refresh sessions are kept in memory and user events are not published")
		sessions = session.NewMemoryStore(nil)
	case err != nil:
		logger.Fatal().Err(err).Msg("failed to connect redis")
	default:
		sessions = session.NewRedisStore(redisClient, logger)
		publisher = events.NewPublisher(redisClient, cfg.Events.Stream, nil)
	}

	keys, err := security.LoadKeyConfig(cfg.Security)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load signing keys")
	}
	signer, err := security.NewSigner(keys, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build token signer")
	}
	verifier, err := security.NewVerifier(keys, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build token verifier")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector("identity", registry)

	hasher := security.NewHasher(cfg.Security.BcryptCost, cfg.Security.HashConcurrency)
	users := repository.NewUserRepository(dbPool)

	authService := service.NewAuthService(users, sessions, hasher, signer, service.AuthConfig{
		AccessTokenTTL:  cfg.Security.AccessTokenTTL,
		RefreshTokenTTL: cfg.Security.RefreshTokenTTL(),
	}, collector, logger)
	userService := service.NewUserService(users, sessions, hasher, publisher, logger)

	routes := handlers.NewIdentityHandlers(handlers.IdentityDeps{
		Auth:         authService,
		Users:        userService,
		UserStore:    users,
		Verifier:     verifier,
		LoginLimiter: middleware.NewRateLimiter(cfg.Security.LoginPerMinute, cfg.Security.LoginBurst, nil),
		Checks: []handlers.HealthCheck{
			{Name: "postgres", Ping: dbPool.Ping},
			{Name: "sessions", Ping: sessions.Ping},
		},
		Environment: cfg.Environment,
		Log:         logger,
	})
	httpServer := server.NewHTTPServer(cfg, logger, routes, collector, registry)

	scheduler := jobs.NewScheduler(sessions, cfg.Jobs.PruneSchedule, collector, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	db.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
