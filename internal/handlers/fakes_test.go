package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/ekrsw/microservice/internal/models"
	"github.com/ekrsw/microservice/internal/repository"
)

type userTable struct {
	mu   sync.Mutex
	rows map[string]models.User
}

func newUserTable() *userTable { return &userTable{rows: map[string]models.User{}} }

var _ repository.UserStore = (*userTable)(nil)

func (u *userTable) Create(_ context.Context, user models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, row := range u.rows {
		if row.Username == user.Username {
			return repository.ErrUsernameTaken
		}
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	u.rows[user.ID] = user
	return nil
}

func (u *userTable) GetByID(_ context.Context, id string) (models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	row, ok := u.rows[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return row, nil
}

func (u *userTable) FindByUsername(_ context.Context, username string) (models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, row := range u.rows {
		if row.Username == username {
			return row, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (u *userTable) List(_ context.Context, offset, limit int) ([]models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []models.User
	for _, row := range u.rows {
		out = append(out, row)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (u *userTable) Update(_ context.Context, user models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.rows[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	u.rows[user.ID] = user
	return nil
}

func (u *userTable) UpdatePassword(_ context.Context, id, digest string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	row, ok := u.rows[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	row.PasswordHash = digest
	u.rows[id] = row
	return nil
}

func (u *userTable) Delete(_ context.Context, id string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.rows[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(u.rows, id)
	return nil
}

type postTable struct {
	mu   sync.Mutex
	rows map[string]models.Post
}

func newPostTable() *postTable { return &postTable{rows: map[string]models.Post{}} }

var _ repository.PostStore = (*postTable)(nil)

func (p *postTable) Create(_ context.Context, post models.Post) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows[post.ID] = post
	return nil
}

func (p *postTable) GetByID(_ context.Context, id string) (models.Post, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	row, ok := p.rows[id]
	if !ok {
		return models.Post{}, repository.ErrPostNotFound
	}
	return row, nil
}

func (p *postTable) List(_ context.Context, f repository.PostFilter) ([]models.Post, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Post
	for _, row := range p.rows {
		if f.OwnerID != "" && row.UserID != f.OwnerID {
			continue
		}
		if !row.IsPublished && (f.PublishedOnly || row.UserID != f.VisibleTo) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (p *postTable) Update(_ context.Context, post models.Post) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.rows[post.ID]; !ok {
		return repository.ErrPostNotFound
	}
	p.rows[post.ID] = post
	return nil
}

func (p *postTable) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.rows[id]; !ok {
		return repository.ErrPostNotFound
	}
	delete(p.rows, id)
	return nil
}

func (p *postTable) DeleteByOwner(_ context.Context, ownerID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	for id, row := range p.rows {
		if row.UserID == ownerID {
			delete(p.rows, id)
			n++
		}
	}
	return n, nil
}
