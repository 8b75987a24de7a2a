package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HealthCheck pings one dependency.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type healthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	Environment  string            `json:"environment"`
}

func healthHandler(checks []HealthCheck, environment string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:       "ok",
			Dependencies: make(map[string]string, len(checks)),
			Environment:  environment,
		}
		status := http.StatusOK
		for _, check := range checks {
			if err := check.Ping(ctx); err != nil {
				log.Error().Err(err).Str("dependency", check.Name).Msg("health check failed")
				resp.Dependencies[check.Name] = "error"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Dependencies[check.Name] = "ok"
		}

		c.JSON(status, resp)
	}
}

// HealthRoutes serves only /healthz, for processes without an API.
type HealthRoutes struct {
	Checks      []HealthCheck
	Environment string
	Log         zerolog.Logger
}

func (h HealthRoutes) Register(router *gin.RouterGroup) {
	router.GET("/healthz", healthHandler(h.Checks, h.Environment, h.Log))
}
