package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/models"
	"github.com/ekrsw/microservice/internal/repository"
	"github.com/ekrsw/microservice/internal/security"
)

func init() { gin.SetMode(gin.TestMode) }

type verifierFunc func(string) (security.Claims, error)

func (f verifierFunc) Verify(token string) (security.Claims, error) { return f(token) }

type loaderFunc func(ctx context.Context, id string) (models.User, error)

func (f loaderFunc) GetByID(ctx context.Context, id string) (models.User, error) { return f(ctx, id) }

var stubVerifier = verifierFunc(func(token string) (security.Claims, error) {
	switch token {
	case "alice":
		return security.Claims{security.ClaimSubject: "u-alice"}, nil
	case "admin":
		return security.Claims{security.ClaimSubject: "u-admin", security.ClaimAdmin: true}, nil
	case "ghost":
		return security.Claims{security.ClaimSubject: "u-ghost"}, nil
	case "frozen":
		return security.Claims{security.ClaimSubject: "u-frozen"}, nil
	case "anon":
		return security.Claims{}, nil
	}
	return nil, security.ErrInvalidToken
})

var stubUsers = loaderFunc(func(_ context.Context, id string) (models.User, error) {
	switch id {
	case "u-alice":
		return models.User{ID: id, Username: "alice", IsActive: true}, nil
	case "u-admin":
		return models.User{ID: id, Username: "root", IsAdmin: true, IsActive: true}, nil
	case "u-frozen":
		return models.User{ID: id, Username: "frozen"}, nil
	case "u-broken":
		return models.User{}, errors.New("connection reset")
	}
	return models.User{}, repository.ErrUserNotFound
})

func serve(t *testing.T, handlers []gin.HandlerFunc, header string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.GET("/", append(handlers, func(c *gin.Context) {
		subject, _ := SubjectFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": subject.ID, "admin": subject.IsAdmin})
	})...)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestLocalAuth(t *testing.T) {
	local := []gin.HandlerFunc{LocalAuth(stubVerifier, stubUsers, zerolog.Nop())}
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer alice", http.StatusOK},
		{"lowercase scheme", "bearer alice", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic alice", http.StatusUnauthorized},
		{"invalid token", "Bearer forged", http.StatusUnauthorized},
		{"no subject", "Bearer anon", http.StatusUnauthorized},
		{"deleted user", "Bearer ghost", http.StatusUnauthorized},
		{"inactive user", "Bearer frozen", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, local, tt.header)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Fatal("missing WWW-Authenticate header")
			}
		})
	}
}

func TestLocalAuthStoreFailureIsServerError(t *testing.T) {
	verifier := verifierFunc(func(string) (security.Claims, error) {
		return security.Claims{security.ClaimSubject: "u-broken"}, nil
	})
	rec := serve(t, []gin.HandlerFunc{LocalAuth(verifier, stubUsers, zerolog.Nop())}, "Bearer x")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestOptionalLocalAuth(t *testing.T) {
	optional := []gin.HandlerFunc{OptionalLocalAuth(stubVerifier, stubUsers, zerolog.Nop())}

	if rec := serve(t, optional, ""); rec.Code != http.StatusOK {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
	if rec := serve(t, optional, "Bearer admin"); rec.Code != http.StatusOK || rec.Body.String() != `{"admin":true,"id":"u-admin"}` {
		t.Fatalf("admin = %d %s", rec.Code, rec.Body.String())
	}
	for _, header := range []string{"Bearer forged", "Bearer ghost", "Bearer frozen", "Basic alice"} {
		rec := serve(t, optional, header)
		if rec.Code != http.StatusOK || rec.Body.String() != `{"admin":false,"id":""}` {
			t.Fatalf("%s = %d %s, want anonymous", header, rec.Code, rec.Body.String())
		}
	}
}

func TestOptionalLocalAuthStoreFailureIsServerError(t *testing.T) {
	verifier := verifierFunc(func(string) (security.Claims, error) {
		return security.Claims{security.ClaimSubject: "u-broken"}, nil
	})
	rec := serve(t, []gin.HandlerFunc{OptionalLocalAuth(verifier, stubUsers, zerolog.Nop())}, "Bearer x")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDelegatedAuthSkipsUserStore(t *testing.T) {
	delegated := []gin.HandlerFunc{DelegatedAuth(stubVerifier, zerolog.Nop())}

	// ghost has no user record, which is fine without a store.
	if rec := serve(t, delegated, "Bearer ghost"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := serve(t, delegated, "Bearer forged"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged status = %d", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	chain := []gin.HandlerFunc{DelegatedAuth(stubVerifier, zerolog.Nop()), RequireAdmin(zerolog.Nop())}

	if rec := serve(t, chain, "Bearer admin"); rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d", rec.Code)
	}
	if rec := serve(t, chain, "Bearer alice"); rec.Code != http.StatusForbidden {
		t.Fatalf("user status = %d", rec.Code)
	}
	if rec := serve(t, []gin.HandlerFunc{RequireAdmin(zerolog.Nop())}, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}
}
