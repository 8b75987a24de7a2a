package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/apperr"
	"github.com/ekrsw/microservice/internal/authz"
	"github.com/ekrsw/microservice/internal/middleware"
	"github.com/ekrsw/microservice/internal/models"
)

// respondError is the single place where errors become HTTP responses.
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	status, detail := apperr.HTTPStatus(err)
	_ = c.Error(err)

	if status >= http.StatusInternalServerError {
		middleware.RequestLogger(c, log).Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Msg("request failed")
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func badRequest(c *gin.Context, log zerolog.Logger, detail string) {
	respondError(c, log, apperr.ErrBadRequest.WithMessage(detail))
}

func requireSubject(c *gin.Context, log zerolog.Logger) (authz.Subject, bool) {
	subject, ok := middleware.SubjectFrom(c)
	if !ok {
		respondError(c, log, apperr.ErrInvalidToken.WithMessage("not authenticated"))
	}
	return subject, ok
}

type pageQuery struct {
	skip  int
	limit int
}

func parsePage(c *gin.Context) (pageQuery, error) {
	var p pageQuery
	var err error
	if p.skip, err = queryInt(c, "skip", 0); err != nil {
		return p, err
	}
	if p.limit, err = queryInt(c, "limit", 0); err != nil {
		return p, err
	}
	return p, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperr.ErrBadRequest.WithMessage(key + " must be a non-negative integer")
	}
	return v, nil
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.ErrBadRequest.WithMessage(key + " must be a boolean")
	}
	return &v, nil
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResponse(user models.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Username:  user.Username,
		IsAdmin:   user.IsAdmin,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

type postResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Content     *string    `json:"content"`
	UserID      string     `json:"user_id"`
	IsPublished bool       `json:"is_published"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toPostResponse(post models.Post) postResponse {
	return postResponse{
		ID:          post.ID,
		Title:       post.Title,
		Content:     post.Content,
		UserID:      post.UserID,
		IsPublished: post.IsPublished,
		PublishedAt: post.PublishedAt,
		CreatedAt:   post.CreatedAt,
		UpdatedAt:   post.UpdatedAt,
	}
}

type detailResponse struct {
	Detail string `json:"detail"`
}
