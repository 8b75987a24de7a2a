package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ekrsw/microservice/internal/apperr"
	"github.com/ekrsw/microservice/internal/middleware"
	"github.com/ekrsw/microservice/internal/service"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

type loginForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func toTokenResponse(pair service.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
	}
}

// RegisterUser creates a self-service account, or an account with the admin
// flag when the caller is an authenticated admin.
func (h IdentityHandlers) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "username and password are required")
		return
	}

	ctx := c.Request.Context()
	if req.IsAdmin {
		actor, ok := middleware.SubjectFrom(c)
		if !ok {
			respondError(c, h.log, apperr.ErrForbidden.WithMessage("admin privileges required to create admin users"))
			return
		}
		user, err := h.users.Provision(ctx, actor, service.AdminRegistration{
			Username: req.Username,
			Password: req.Password,
			IsAdmin:  true,
		})
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, toUserResponse(user))
		return
	}

	user, err := h.users.Register(ctx, service.SelfRegistration{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h IdentityHandlers) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		badRequest(c, h.log, "username and password are required")
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), form.Username, form.Password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(pair))
}

func (h IdentityHandlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "refresh_token is required")
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(pair))
}

func (h IdentityHandlers) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "refresh_token is required")
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, detailResponse{Detail: "successfully logged out"})
}
