package models

import "time"

// Post.PublishedAt is non-nil exactly when IsPublished is true.
type Post struct {
	ID          string
	Title       string
	Content     *string
	UserID      string
	IsPublished bool
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
