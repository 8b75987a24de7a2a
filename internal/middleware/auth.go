package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/apperr"
	"github.com/ekrsw/microservice/internal/authz"
	"github.com/ekrsw/microservice/internal/models"
	"github.com/ekrsw/microservice/internal/repository"
	"github.com/ekrsw/microservice/internal/security"
)

const (
	subjectKey = "auth_subject"
	userKey    = "current_user"
	claimsKey  = "access_claims"
)

type TokenVerifier interface {
	Verify(token string) (security.Claims, error)
}

type UserLoader interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

var errNotAuthenticated = apperr.ErrInvalidToken.WithMessage("not authenticated")

// LocalAuth verifies the bearer token and loads the caller from the user
// store. Missing users are rejected with 401, inactive ones with 403.
func LocalAuth(verifier TokenVerifier, users UserLoader, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authenticateLocal(c, verifier, users); err != nil {
			abortWithError(c, log, err)
			return
		}
		c.Next()
	}
}

// OptionalLocalAuth attaches the caller when the bearer token checks out. A
// rejected token leaves the request anonymous; only store failures abort.
func OptionalLocalAuth(verifier TokenVerifier, users UserLoader, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		if err := authenticateLocal(c, verifier, users); err != nil {
			if status, _ := apperr.HTTPStatus(err); status >= http.StatusInternalServerError {
				abortWithError(c, log, err)
				return
			}
			RequestLogger(c, log).Debug().Err(err).Msg("ignoring rejected bearer token")
		}
		c.Next()
	}
}

// DelegatedAuth trusts the verified claims and never touches a user store.
func DelegatedAuth(verifier TokenVerifier, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := verifyBearer(c, verifier)
		if err != nil {
			abortWithError(c, log, err)
			return
		}

		c.Set(claimsKey, claims)
		c.Set(subjectKey, authz.Subject{ID: claims.Subject(), IsAdmin: claims.IsAdmin()})
		c.Next()
	}
}

func RequireAdmin(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, ok := SubjectFrom(c)
		if !ok {
			abortWithError(c, log, errNotAuthenticated)
			return
		}
		if err := authz.AdminOnly(subject); err != nil {
			abortWithError(c, log, err)
			return
		}
		c.Next()
	}
}

func SubjectFrom(c *gin.Context) (authz.Subject, bool) {
	v, ok := c.Get(subjectKey)
	if !ok {
		return authz.Subject{}, false
	}
	subject, ok := v.(authz.Subject)
	return subject, ok
}

func UserFrom(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

func authenticateLocal(c *gin.Context, verifier TokenVerifier, users UserLoader) error {
	claims, err := verifyBearer(c, verifier)
	if err != nil {
		return err
	}

	user, err := users.GetByID(c.Request.Context(), claims.Subject())
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.ErrInvalidToken.WithMessage("user not found")
		}
		return err
	}
	if !user.IsActive {
		return apperr.ErrInactiveUser
	}

	c.Set(claimsKey, claims)
	c.Set(userKey, user)
	c.Set(subjectKey, authz.SubjectOf(user))
	return nil
}

func verifyBearer(c *gin.Context, verifier TokenVerifier) (security.Claims, error) {
	header := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, errNotAuthenticated
	}

	claims, err := verifier.Verify(strings.TrimSpace(token))
	if err != nil {
		return nil, apperr.ErrInvalidToken.Wrap(err)
	}
	if claims.Subject() == "" {
		return nil, apperr.ErrInvalidToken.WithMessage("token has no subject")
	}
	return claims, nil
}
