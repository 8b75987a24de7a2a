package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ekrsw/microservice/internal/apperr"
	"github.com/ekrsw/microservice/internal/middleware"
	"github.com/ekrsw/microservice/internal/service"
)

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
	IsAdmin  *bool   `json:"is_admin"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

type adminPasswordRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (h IdentityHandlers) Me(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		respondError(c, h.log, apperr.ErrInvalidToken.WithMessage("not authenticated"))
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h IdentityHandlers) GetUser(c *gin.Context) {
	actor, ok := requireSubject(c, h.log)
	if !ok {
		return
	}

	user, err := h.users.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h IdentityHandlers) ListUsers(c *gin.Context) {
	actor, ok := requireSubject(c, h.log)
	if !ok {
		return
	}
	page, err := parsePage(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	users, err := h.users.List(c.Request.Context(), actor, page.skip, page.limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	items := make([]userResponse, 0, len(users))
	for _, user := range users {
		items = append(items, toUserResponse(user))
	}
	c.JSON(http.StatusOK, items)
}

func (h IdentityHandlers) CreateUser(c *gin.Context) {
	actor, ok := requireSubject(c, h.log)
	if !ok {
		return
	}
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "username and password are required")
		return
	}

	user, err := h.users.Provision(c.Request.Context(), actor, service.AdminRegistration{
		Username: req.Username,
		Password: req.Password,
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, toUserResponse(user))
}

func (h IdentityHandlers) UpdateUser(c *gin.Context) {
	actor, ok := requireSubject(c, h.log)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "invalid request body")
		return
	}

	user, err := h.users.Update(c.Request.Context(), actor, c.Param("id"), service.UserUpdate{
		Username: req.Username,
		Password: req.Password,
		IsActive: req.IsActive,
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h IdentityHandlers) DeleteUser(c *gin.Context) {
	actor, ok := requireSubject(c, h.log)
	if !ok {
		return
	}

	if err := h.users.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h IdentityHandlers) ChangePassword(c *gin.Context) {
	actor, ok := requireSubject(c, h.log)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "current_password and new_password are required")
		return
	}

	user, err := h.users.ChangePassword(c.Request.Context(), actor, req.CurrentPassword, req.NewPassword)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h IdentityHandlers) AdminSetPassword(c *gin.Context) {
	actor, ok := requireSubject(c, h.log)
	if !ok {
		return
	}
	var req adminPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "user_id and new_password are required")
		return
	}

	user, err := h.users.AdminSetPassword(c.Request.Context(), actor, req.UserID, req.NewPassword)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}
