package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ekrsw/microservice/internal/authclient"
	"github.com/ekrsw/microservice/internal/models"
)

func (h PostsHandlers) ProxyLogin(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		badRequest(c, h.log, "username and password are required")
		return
	}
	resp, err := h.proxy.Login(c.Request.Context(), form.Username, form.Password)
	h.relay(c, resp, err)
}

func (h PostsHandlers) ProxyRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "refresh_token is required")
		return
	}
	resp, err := h.proxy.Refresh(c.Request.Context(), req.RefreshToken)
	h.relay(c, resp, err)
}

func (h PostsHandlers) ProxyLogout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "refresh_token is required")
		return
	}
	resp, err := h.proxy.Logout(c.Request.Context(), req.RefreshToken)
	h.relay(c, resp, err)
}

func (h PostsHandlers) relay(c *gin.Context, resp authclient.Response, err error) {
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Data(resp.Status, "application/json", resp.Body)
}

func toPostResponses(posts []models.Post) []postResponse {
	items := make([]postResponse, 0, len(posts))
	for _, post := range posts {
		items = append(items, toPostResponse(post))
	}
	return items
}
