package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ekrsw/microservice/internal/models"
	"github.com/ekrsw/microservice/internal/repository"
	"github.com/ekrsw/microservice/internal/security"
)

type memUsers struct {
	mu    sync.Mutex
	byID  map[string]models.User
	now   func() time.Time
	fails map[string]error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]models.User{}, now: time.Now, fails: map[string]error{}}
}

var _ repository.UserStore = (*memUsers)(nil)

func (m *memUsers) Create(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fails["create"]; err != nil {
		return err
	}
	for _, u := range m.byID {
		if u.Username == user.Username {
			return repository.ErrUsernameTaken
		}
	}
	user.CreatedAt = m.now()
	user.UpdatedAt = user.CreatedAt
	m.byID[user.ID] = user
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) List(_ context.Context, offset, limit int) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]models.User, 0, len(m.byID))
	for _, u := range m.byID {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	if offset > len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *memUsers) Update(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	for _, u := range m.byID {
		if u.ID != user.ID && u.Username == user.Username {
			return repository.ErrUsernameTaken
		}
	}
	user.UpdatedAt = m.now()
	m.byID[user.ID] = user
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = digest
	m.byID[id] = u
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type memPosts struct {
	mu   sync.Mutex
	byID map[string]models.Post
	last repository.PostFilter
}

func newMemPosts() *memPosts { return &memPosts{byID: map[string]models.Post{}} }

var _ repository.PostStore = (*memPosts)(nil)

func (m *memPosts) Create(_ context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[post.ID] = post
	return nil
}

func (m *memPosts) GetByID(_ context.Context, id string) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return models.Post{}, repository.ErrPostNotFound
	}
	return p, nil
}

func (m *memPosts) List(_ context.Context, f repository.PostFilter) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = f
	var out []models.Post
	for _, p := range m.byID {
		if f.OwnerID != "" && p.UserID != f.OwnerID {
			continue
		}
		if !p.IsPublished && (f.PublishedOnly || p.UserID != f.VisibleTo) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPosts) Update(_ context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[post.ID]; !ok {
		return repository.ErrPostNotFound
	}
	m.byID[post.ID] = post
	return nil
}

func (m *memPosts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrPostNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memPosts) DeleteByOwner(_ context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.byID {
		if p.UserID == ownerID {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	deleted []string
}

func (p *recordingPublisher) PublishUserDeleted(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, userID)
	return nil
}

type recordingMetrics struct {
	mu     sync.Mutex
	events map[string]int
}

func (r *recordingMetrics) RecordAuthEvent(event, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = map[string]int{}
	}
	r.events[event+"/"+outcome]++
}

func (r *recordingMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
func (r *recordingMetrics) RecordEventProcessed(string, string)                  {}
func (r *recordingMetrics) RecordSessionsPruned(int)                             {}

func testHasher() *security.Hasher { return security.NewHasher(bcrypt.MinCost, 4) }
