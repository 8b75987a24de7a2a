package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/authclient"
	"github.com/ekrsw/microservice/internal/middleware"
	"github.com/ekrsw/microservice/internal/service"
)

type CredentialProxy interface {
	Login(ctx context.Context, username, password string) (authclient.Response, error)
	Refresh(ctx context.Context, refreshToken string) (authclient.Response, error)
	Logout(ctx context.Context, refreshToken string) (authclient.Response, error)
}

var _ CredentialProxy = (*authclient.Client)(nil)

type PostsDeps struct {
	Posts       *service.PostService
	Proxy       CredentialProxy
	Verifier    middleware.TokenVerifier
	Checks      []HealthCheck
	Environment string
	Log         zerolog.Logger
}

// PostsHandlers serves posts and forwards credential calls to identity.
type PostsHandlers struct {
	log         zerolog.Logger
	posts       *service.PostService
	proxy       CredentialProxy
	verifier    middleware.TokenVerifier
	checks      []HealthCheck
	environment string
}

func NewPostsHandlers(deps PostsDeps) PostsHandlers {
	return PostsHandlers{
		log:         deps.Log,
		posts:       deps.Posts,
		proxy:       deps.Proxy,
		verifier:    deps.Verifier,
		checks:      deps.Checks,
		environment: deps.Environment,
	}
}

func (h PostsHandlers) Register(router *gin.RouterGroup) {
	router.GET("/healthz", healthHandler(h.checks, h.environment, h.log))

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/login", h.ProxyLogin)
		auth.POST("/refresh", h.ProxyRefresh)
		auth.POST("/logout", h.ProxyLogout)

		posts := v1.Group("/posts")
		posts.Use(middleware.DelegatedAuth(h.verifier, h.log))
		posts.GET("/", h.ListPosts)
		posts.POST("/", h.CreatePost)
		posts.GET("/user/:user_id", h.ListUserPosts)
		posts.GET("/:id", h.GetPost)
		posts.PUT("/:id", h.UpdatePost)
		posts.DELETE("/:id", h.DeletePost)
	}
}

type createPostRequest struct {
	Title       string  `json:"title" binding:"required"`
	Content     *string `json:"content"`
	IsPublished bool    `json:"is_published"`
}

type updatePostRequest struct {
	Title       *string `json:"title"`
	Content     *string `json:"content"`
	IsPublished *bool   `json:"is_published"`
}

func (h PostsHandlers) CreatePost(c *gin.Context) {
	subject, ok := requireSubject(c, h.log)
	if !ok {
		return
	}
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "title is required")
		return
	}

	post, err := h.posts.Create(c.Request.Context(), subject, service.PostInput{
		Title:       req.Title,
		Content:     req.Content,
		IsPublished: req.IsPublished,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, toPostResponse(post))
}

func (h PostsHandlers) GetPost(c *gin.Context) {
	subject, ok := requireSubject(c, h.log)
	if !ok {
		return
	}

	post, err := h.posts.Get(c.Request.Context(), subject, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toPostResponse(post))
}

func (h PostsHandlers) ListPosts(c *gin.Context) {
	subject, ok := requireSubject(c, h.log)
	if !ok {
		return
	}
	opts, err := parseListOptions(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	posts, err := h.posts.List(c.Request.Context(), subject, opts)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toPostResponses(posts))
}

func (h PostsHandlers) ListUserPosts(c *gin.Context) {
	subject, ok := requireSubject(c, h.log)
	if !ok {
		return
	}
	opts, err := parseListOptions(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	posts, err := h.posts.ListByUser(c.Request.Context(), subject, c.Param("user_id"), opts)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toPostResponses(posts))
}

func (h PostsHandlers) UpdatePost(c *gin.Context) {
	subject, ok := requireSubject(c, h.log)
	if !ok {
		return
	}
	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "invalid request body")
		return
	}

	post, err := h.posts.Update(c.Request.Context(), subject, c.Param("id"), service.PostUpdate{
		Title:       req.Title,
		Content:     req.Content,
		IsPublished: req.IsPublished,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toPostResponse(post))
}

func (h PostsHandlers) DeletePost(c *gin.Context) {
	subject, ok := requireSubject(c, h.log)
	if !ok {
		return
	}

	post, err := h.posts.Delete(c.Request.Context(), subject, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toPostResponse(post))
}

func parseListOptions(c *gin.Context) (service.ListOptions, error) {
	page, err := parsePage(c)
	if err != nil {
		return service.ListOptions{}, err
	}
	publishedOnly, err := queryBool(c, "published_only")
	if err != nil {
		return service.ListOptions{}, err
	}
	return service.ListOptions{
		Skip:          page.skip,
		Limit:         page.limit,
		PublishedOnly: publishedOnly,
	}, nil
}
