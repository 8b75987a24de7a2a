package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/apperr"
	"github.com/ekrsw/microservice/internal/authz"
	"github.com/ekrsw/microservice/internal/ids"
	"github.com/ekrsw/microservice/internal/models"
	"github.com/ekrsw/microservice/internal/repository"
)

type PostService struct {
	posts repository.PostStore
	now   func() time.Time
	log   zerolog.Logger
}

func NewPostService(posts repository.PostStore, now func() time.Time, log zerolog.Logger) *PostService {
	if now == nil {
		now = time.Now
	}
	return &PostService{posts: posts, now: now, log: log}
}

type PostInput struct {
	Title       string
	Content     *string
	IsPublished bool
}

type PostUpdate struct {
	Title       *string
	Content     *string
	IsPublished *bool
}

// ListOptions.PublishedOnly nil selects the endpoint default.
type ListOptions struct {
	Skip          int
	Limit         int
	PublishedOnly *bool
}

var errPostNotFound = apperr.ErrNotFound.WithMessage("post not found")

func (s *PostService) Create(ctx context.Context, subject authz.Subject, in PostInput) (models.Post, error) {
	title, err := normalizeTitle(in.Title)
	if err != nil {
		return models.Post{}, err
	}

	now := s.now().UTC()
	post := models.Post{
		ID:          ids.New(),
		Title:       title,
		Content:     in.Content,
		UserID:      subject.ID,
		IsPublished: in.IsPublished,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if post.IsPublished {
		post.PublishedAt = &now
	}

	if err := s.posts.Create(ctx, post); err != nil {
		return models.Post{}, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

func (s *PostService) Get(ctx context.Context, subject authz.Subject, id string) (models.Post, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	if err := authz.CanReadPost(subject, post); err != nil {
		return models.Post{}, err
	}
	return post, nil
}

// List defaults to published posts only. With PublishedOnly=false the
// caller's own drafts are included, never anyone else's.
func (s *PostService) List(ctx context.Context, subject authz.Subject, opts ListOptions) ([]models.Post, error) {
	publishedOnly := true
	if opts.PublishedOnly != nil {
		publishedOnly = *opts.PublishedOnly
	}
	return s.list(ctx, subject, "", publishedOnly, opts)
}

// ListByUser defaults to published-only unless the caller lists their own posts.
func (s *PostService) ListByUser(ctx context.Context, subject authz.Subject, userID string, opts ListOptions) ([]models.Post, error) {
	publishedOnly := userID != subject.ID
	if opts.PublishedOnly != nil {
		publishedOnly = *opts.PublishedOnly
	}
	return s.list(ctx, subject, userID, publishedOnly, opts)
}

func (s *PostService) list(ctx context.Context, subject authz.Subject, ownerID string, publishedOnly bool, opts ListOptions) ([]models.Post, error) {
	skip, limit := Page(opts.Skip, opts.Limit)
	posts, err := s.posts.List(ctx, repository.PostFilter{
		OwnerID:       ownerID,
		PublishedOnly: publishedOnly,
		VisibleTo:     subject.ID,
		Offset:        skip,
		Limit:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

func (s *PostService) Update(ctx context.Context, subject authz.Subject, id string, upd PostUpdate) (models.Post, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	if err := authz.CanMutatePost(subject, post); err != nil {
		return models.Post{}, err
	}

	if upd.Title != nil {
		title, err := normalizeTitle(*upd.Title)
		if err != nil {
			return models.Post{}, err
		}
		post.Title = title
	}
	if upd.Content != nil {
		post.Content = upd.Content
	}

	now := s.now().UTC()
	if upd.IsPublished != nil && *upd.IsPublished != post.IsPublished {
		post.IsPublished = *upd.IsPublished
		if post.IsPublished {
			post.PublishedAt = &now
		} else {
			post.PublishedAt = nil
		}
	}
	post.UpdatedAt = now

	if err := s.posts.Update(ctx, post); err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return models.Post{}, errPostNotFound
		}
		return models.Post{}, fmt.Errorf("update post: %w", err)
	}
	return post, nil
}

// Delete returns the removed post.
func (s *PostService) Delete(ctx context.Context, subject authz.Subject, id string) (models.Post, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	if err := authz.CanMutatePost(subject, post); err != nil {
		return models.Post{}, err
	}

	if err := s.posts.Delete(ctx, post.ID); err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return models.Post{}, errPostNotFound
		}
		return models.Post{}, fmt.Errorf("delete post: %w", err)
	}
	return post, nil
}

func (s *PostService) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	n, err := s.posts.DeleteByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("user_id", ownerID).Int64("deleted", n).Msg("removed posts of deleted user")
	return n, nil
}

func (s *PostService) load(ctx context.Context, id string) (models.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return models.Post{}, errPostNotFound
		}
		return models.Post{}, fmt.Errorf("load post: %w", err)
	}
	return post, nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperr.ErrBadRequest.WithMessage("title is required")
	}
	return title, nil
}
