package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/apperr"
	"github.com/ekrsw/microservice/internal/authz"
	"github.com/ekrsw/microservice/internal/ids"
	"github.com/ekrsw/microservice/internal/models"
	"github.com/ekrsw/microservice/internal/repository"
	"github.com/ekrsw/microservice/internal/security"
	"github.com/ekrsw/microservice/internal/session"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 200
)

type UserEventPublisher interface {
	PublishUserDeleted(ctx context.Context, userID string) error
}

type UserService struct {
	users    repository.UserStore
	sessions session.Store
	hasher   PasswordHasher
	events   UserEventPublisher
	log      zerolog.Logger
}

func NewUserService(
	users repository.UserStore,
	sessions session.Store,
	hasher PasswordHasher,
	events UserEventPublisher,
	log zerolog.Logger,
) *UserService {
	return &UserService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		events:   events,
		log:      log,
	}
}

// SelfRegistration always creates a non-admin user.
type SelfRegistration struct {
	Username string
	Password string
}

// AdminRegistration may only be submitted by an admin.
type AdminRegistration struct {
	Username string
	Password string
	IsAdmin  bool
}

// UserUpdate applies only the non-nil fields. A non-nil IsAdmin from a
// non-admin is rejected whatever its value.
type UserUpdate struct {
	Username *string
	Password *string
	IsActive *bool
	IsAdmin  *bool
}

func (s *UserService) Register(ctx context.Context, in SelfRegistration) (models.User, error) {
	return s.create(ctx, in.Username, in.Password, false)
}

func (s *UserService) Provision(ctx context.Context, actor authz.Subject, in AdminRegistration) (models.User, error) {
	if err := authz.AdminOnly(actor); err != nil {
		return models.User{}, err
	}
	return s.create(ctx, in.Username, in.Password, in.IsAdmin)
}

func (s *UserService) create(ctx context.Context, username, password string, isAdmin bool) (models.User, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return models.User{}, err
	}
	if err := s.ensureUsernameFree(ctx, username); err != nil {
		return models.User{}, err
	}

	digest, err := s.hashPassword(ctx, password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Username:     username,
		PasswordHash: digest,
		IsAdmin:      isAdmin,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return models.User{}, errUsernameTaken
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}

	created, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("reload user: %w", err)
	}

	s.log.Info().Str("user_id", created.ID).Bool("is_admin", created.IsAdmin).Msg("user registered")
	return created, nil
}

func (s *UserService) Get(ctx context.Context, actor authz.Subject, id string) (models.User, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if err := authz.SelfOrAdmin(actor, user.ID); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, actor authz.Subject, skip, limit int) ([]models.User, error) {
	if err := authz.AdminOnly(actor); err != nil {
		return nil, err
	}
	skip, limit = Page(skip, limit)
	users, err := s.users.List(ctx, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *UserService) Update(ctx context.Context, actor authz.Subject, id string, upd UserUpdate) (models.User, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if err := authz.SelfOrAdmin(actor, user.ID); err != nil {
		return models.User{}, err
	}
	if upd.IsAdmin != nil {
		if err := authz.AdminFlagChange(actor); err != nil {
			return models.User{}, err
		}
		user.IsAdmin = *upd.IsAdmin
	}

	if upd.Username != nil {
		username, err := normalizeUsername(*upd.Username)
		if err != nil {
			return models.User{}, err
		}
		if username != user.Username {
			if err := s.ensureUsernameFree(ctx, username); err != nil {
				return models.User{}, err
			}
			user.Username = username
		}
	}
	if upd.IsActive != nil {
		user.IsActive = *upd.IsActive
	}

	passwordChanged := false
	if upd.Password != nil {
		digest, err := s.hashPassword(ctx, *upd.Password)
		if err != nil {
			return models.User{}, err
		}
		user.PasswordHash = digest
		passwordChanged = true
	}

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameTaken):
			return models.User{}, errUsernameTaken
		case errors.Is(err, repository.ErrUserNotFound):
			return models.User{}, errUserNotFound
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}

	if passwordChanged || !user.IsActive {
		s.revokeSessions(ctx, user.ID)
	}

	return s.load(ctx, user.ID)
}

func (s *UserService) Delete(ctx context.Context, actor authz.Subject, id string) error {
	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.AdminOnly(actor); err != nil {
		return err
	}
	if err := authz.SelfDelete(actor, user.ID); err != nil {
		return err
	}

	if err := s.users.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return errUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	s.revokeSessions(ctx, user.ID)
	if s.events != nil {
		if err := s.events.PublishUserDeleted(ctx, user.ID); err != nil {
			s.log.Error().Err(err).Str("user_id", user.ID).Msg("publish user.deleted failed")
		}
	}

	s.log.Info().Str("user_id", user.ID).Str("actor_id", actor.ID).Msg("user deleted")
	return nil
}

// ChangePassword lets the caller replace their own password after proving
// the current one. All of the caller's refresh sessions are revoked.
func (s *UserService) ChangePassword(ctx context.Context, actor authz.Subject, current, next string) (models.User, error) {
	user, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.ErrInvalidUser
		}
		return models.User{}, fmt.Errorf("load user: %w", err)
	}

	ok, err := s.hasher.Verify(ctx, current, user.PasswordHash)
	if err != nil {
		if errors.Is(err, security.ErrMalformedDigest) {
			return models.User{}, apperr.ErrMalformedDigest.Wrap(err)
		}
		return models.User{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return models.User{}, apperr.ErrInvalidCredentials.WithMessage("current password is incorrect")
	}
	if current == next {
		return models.User{}, apperr.ErrBadRequest.WithMessage("new password must differ from the current password")
	}

	return s.setPassword(ctx, user.ID, next)
}

func (s *UserService) AdminSetPassword(ctx context.Context, actor authz.Subject, id, next string) (models.User, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if err := authz.AdminOnly(actor); err != nil {
		return models.User{}, err
	}
	return s.setPassword(ctx, user.ID, next)
}

func (s *UserService) setPassword(ctx context.Context, id, password string) (models.User, error) {
	digest, err := s.hashPassword(ctx, password)
	if err != nil {
		return models.User{}, err
	}
	if err := s.users.UpdatePassword(ctx, id, digest); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, errUserNotFound
		}
		return models.User{}, fmt.Errorf("update password: %w", err)
	}
	s.revokeSessions(ctx, id)
	return s.load(ctx, id)
}

func (s *UserService) load(ctx context.Context, id string) (models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, errUserNotFound
		}
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *UserService) ensureUsernameFree(ctx context.Context, username string) error {
	_, err := s.users.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return errUsernameTaken
	case errors.Is(err, repository.ErrUserNotFound):
		return nil
	default:
		return fmt.Errorf("check username: %w", err)
	}
}

func (s *UserService) hashPassword(ctx context.Context, password string) (string, error) {
	digest, err := s.hasher.Hash(ctx, password)
	switch {
	case err == nil:
		return digest, nil
	case errors.Is(err, security.ErrPasswordTooLong):
		return "", apperr.ErrBadRequest.WithMessage(fmt.Sprintf("password must be at most %d bytes", security.MaxPasswordBytes))
	case errors.Is(err, security.ErrEmptyPassword):
		return "", apperr.ErrBadRequest.WithMessage("password is required")
	default:
		return "", fmt.Errorf("hash password: %w", err)
	}
}

func (s *UserService) revokeSessions(ctx context.Context, userID string) {
	n, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("revoke sessions failed")
		return
	}
	if n > 0 {
		s.log.Info().Str("user_id", userID).Int("revoked", n).Msg("refresh sessions revoked")
	}
}

var (
	errUserNotFound  = apperr.ErrNotFound.WithMessage("user not found")
	errUsernameTaken = apperr.ErrConflict.WithMessage("username already registered")
)

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	n := utf8.RuneCountInString(username)
	if n < 1 || n > models.MaxUsernameLength {
		return "", apperr.ErrBadRequest.WithMessage(fmt.Sprintf("username must be 1 to %d characters", models.MaxUsernameLength))
	}
	return username, nil
}

// Page clamps pagination parameters.
func Page(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return skip, limit
}
