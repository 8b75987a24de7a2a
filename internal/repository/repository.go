package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekrsw/microservice/internal/models"
)

const uniqueViolation = "23505"

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrPostNotFound  = errors.New("post not found")
)

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	List(ctx context.Context, offset, limit int) ([]models.User, error)
	Update(ctx context.Context, user models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
}

// PostFilter narrows List. With PublishedOnly unset, drafts are included only
// when they belong to VisibleTo.
type PostFilter struct {
	OwnerID       string
	PublishedOnly bool
	VisibleTo     string
	Offset        int
	Limit         int
}

type PostStore interface {
	Create(ctx context.Context, post models.Post) error
	GetByID(ctx context.Context, id string) (models.Post, error)
	List(ctx context.Context, filter PostFilter) ([]models.Post, error)
	Update(ctx context.Context, post models.Post) error
	Delete(ctx context.Context, id string) error
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
