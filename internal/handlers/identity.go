package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/middleware"
	"github.com/ekrsw/microservice/internal/service"
)

type IdentityDeps struct {
	Auth         *service.AuthService
	Users        *service.UserService
	UserStore    middleware.UserLoader
	Verifier     middleware.TokenVerifier
	LoginLimiter *middleware.RateLimiter
	Checks       []HealthCheck
	Environment  string
	Log          zerolog.Logger
}

// IdentityHandlers serves registration, credentials and user management.
type IdentityHandlers struct {
	log          zerolog.Logger
	auth         *service.AuthService
	users        *service.UserService
	userStore    middleware.UserLoader
	verifier     middleware.TokenVerifier
	loginLimiter *middleware.RateLimiter
	checks       []HealthCheck
	environment  string
}

func NewIdentityHandlers(deps IdentityDeps) IdentityHandlers {
	return IdentityHandlers{
		log:          deps.Log,
		auth:         deps.Auth,
		users:        deps.Users,
		userStore:    deps.UserStore,
		verifier:     deps.Verifier,
		loginLimiter: deps.LoginLimiter,
		checks:       deps.Checks,
		environment:  deps.Environment,
	}
}

func (h IdentityHandlers) Register(router *gin.RouterGroup) {
	router.GET("/healthz", healthHandler(h.checks, h.environment, h.log))

	limit := func(c *gin.Context) { c.Next() }
	if h.loginLimiter != nil {
		limit = h.loginLimiter.Middleware()
	}

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", middleware.OptionalLocalAuth(h.verifier, h.userStore, h.log), h.RegisterUser)
		auth.POST("/login", limit, h.Login)
		auth.POST("/refresh", limit, h.Refresh)
		auth.POST("/logout", h.Logout)

		protected := v1.Group("/auth")
		protected.Use(middleware.LocalAuth(h.verifier, h.userStore, h.log))
		protected.GET("/user/me", h.Me)
		protected.GET("/user/:id", h.GetUser)
		protected.GET("/users", middleware.RequireAdmin(h.log), h.ListUsers)
		protected.POST("/users", h.CreateUser)
		protected.PUT("/users/:id", h.UpdateUser)
		protected.DELETE("/users/:id", h.DeleteUser)
		protected.POST("/update/password", h.ChangePassword)
		protected.POST("/admin/update/password", h.AdminSetPassword)
	}
}
