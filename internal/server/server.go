package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/config"
	"github.com/ekrsw/microservice/internal/metrics"
	"github.com/ekrsw/microservice/internal/middleware"
)

// Routes mounts one service's handlers under /api.
type Routes interface {
	Register(router *gin.RouterGroup)
}

type HTTPServer struct {
	engine *gin.Engine
	server *http.Server
	log    zerolog.Logger
}

// NewEngine builds the gin engine with the shared middleware chain. A nil
// gatherer leaves /metrics unmounted.
func NewEngine(cfg *config.AppConfig, log zerolog.Logger, routes Routes, recorder metrics.Recorder, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = true
	engine.RedirectFixedPath = true

	engine.Use(
		middleware.RequestID(log),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.CORS(cfg.AllowCORSOrigins),
		middleware.Metrics(recorder),
	)

	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}
	if routes != nil {
		routes.Register(engine.Group("/api"))
	}

	return engine
}

func NewHTTPServer(cfg *config.AppConfig, log zerolog.Logger, routes Routes, recorder metrics.Recorder, gatherer prometheus.Gatherer) *HTTPServer {
	engine := NewEngine(cfg, log, routes, recorder, gatherer)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &HTTPServer{
		engine: engine,
		server: srv,
		log:    log.With().Str("component", "http").Logger(),
	}
}

func (s *HTTPServer) Handler() http.Handler { return s.engine }

func (s *HTTPServer) Start() error {
	s.log.Info().
		Str("addr", s.server.Addr).
		Msg("http server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}
