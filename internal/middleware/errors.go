package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/apperr"
)

func abortWithError(c *gin.Context, log zerolog.Logger, err error) {
	status, detail := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		RequestLogger(c, log).Error().Err(err).Msg("request aborted")
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
