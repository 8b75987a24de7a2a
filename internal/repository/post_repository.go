package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekrsw/microservice/internal/models"
)

var _ PostStore = (*PostRepository)(nil)

const postColumns = `id, title, content, user_id, is_published, published_at, created_at, updated_at`

type PostRepository struct {
	pool *pgxpool.Pool
}

func NewPostRepository(pool *pgxpool.Pool) *PostRepository {
	return &PostRepository{pool: pool}
}

func (r *PostRepository) Create(ctx context.Context, post models.Post) error {
	const query = `
		INSERT INTO posts (
			id, title, content, user_id, is_published, published_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`
	_, err := r.pool.Exec(ctx, query,
		post.ID,
		post.Title,
		post.Content,
		post.UserID,
		post.IsPublished,
		post.PublishedAt,
		post.CreatedAt,
		post.UpdatedAt,
	)
	return err
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	return scanPost(r.pool.QueryRow(ctx, query, id))
}

func (r *PostRepository) List(ctx context.Context, filter PostFilter) ([]models.Post, error) {
	query, args := buildPostListQuery(filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]models.Post, 0, filter.Limit)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func buildPostListQuery(filter PostFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.OwnerID != "" {
		conds = append(conds, "user_id = "+arg(filter.OwnerID))
	}
	switch {
	case filter.PublishedOnly:
		conds = append(conds, "is_published = TRUE")
	case filter.VisibleTo != "":
		conds = append(conds, "(is_published = TRUE OR user_id = "+arg(filter.VisibleTo)+")")
	default:
		conds = append(conds, "is_published = TRUE")
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + postColumns + ` FROM posts`)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	b.WriteString(" OFFSET " + arg(filter.Offset))
	b.WriteString(" LIMIT " + arg(filter.Limit))
	return b.String(), args
}

func (r *PostRepository) Update(ctx context.Context, post models.Post) error {
	const query = `
		UPDATE posts
		SET title = $2, content = $3, is_published = $4, published_at = $5, updated_at = $6
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query,
		post.ID,
		post.Title,
		post.Content,
		post.IsPublished,
		post.PublishedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *PostRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *PostRepository) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE user_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete posts of %s: %w", ownerID, err)
	}
	return cmd.RowsAffected(), nil
}

func scanPost(row scanner) (models.Post, error) {
	var post models.Post
	if err := row.Scan(
		&post.ID,
		&post.Title,
		&post.Content,
		&post.UserID,
		&post.IsPublished,
		&post.PublishedAt,
		&post.CreatedAt,
		&post.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, ErrPostNotFound
		}
		return models.Post{}, err
	}
	return post, nil
}
