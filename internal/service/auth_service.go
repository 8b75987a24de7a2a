package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/apperr"
	"github.com/ekrsw/microservice/internal/metrics"
	"github.com/ekrsw/microservice/internal/models"
	"github.com/ekrsw/microservice/internal/repository"
	"github.com/ekrsw/microservice/internal/security"
	"github.com/ekrsw/microservice/internal/session"
)

const TokenTypeBearer = "bearer"

// A rejected logout is still InvalidRefreshToken but answers 400, not 401.
var errLogoutRejected = &apperr.Error{
	Kind:    apperr.KindInvalidRefreshToken,
	Message: "invalid refresh token",
	Status:  http.StatusBadRequest,
}

type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, digest string) (bool, error)
	NeedsRehash(digest string) bool
}

type AccessTokenIssuer interface {
	IssueAccessToken(userID string, isAdmin bool, ttl time.Duration) (string, error)
}

var (
	_ PasswordHasher    = (*security.Hasher)(nil)
	_ AccessTokenIssuer = (*security.Signer)(nil)
)

type AuthConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// AuthService issues, rotates and revokes credential pairs.
type AuthService struct {
	users    repository.UserStore
	sessions session.Store
	hasher   PasswordHasher
	tokens   AccessTokenIssuer
	cfg      AuthConfig
	metrics  metrics.Recorder
	log      zerolog.Logger

	decoyDigest string
}

func NewAuthService(
	users repository.UserStore,
	sessions session.Store,
	hasher PasswordHasher,
	tokens AccessTokenIssuer,
	cfg AuthConfig,
	recorder metrics.Recorder,
	log zerolog.Logger,
) *AuthService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	s := &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		cfg:      cfg,
		metrics:  recorder,
		log:      log,
	}
	digest, err := hasher.Hash(context.Background(), decoyPassword)
	if err != nil {
		log.Warn().Err(err).Msg("decoy digest unavailable")
	}
	s.decoyDigest = digest
	return s
}

// Login answers an unknown username and a wrong password with the same error.
func (s *AuthService) Login(ctx context.Context, username, password string) (TokenPair, error) {
	pair, err := s.login(ctx, username, password)
	s.record("login", err)
	return pair, err
}

func (s *AuthService) login(ctx context.Context, username, password string) (TokenPair, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.burnDecoy(ctx, password)
			s.log.Warn().Str("reason", "unknown_user").Msg("login rejected")
			return TokenPair{}, apperr.ErrInvalidCredentials
		}
		return TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	ok, err := s.hasher.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		if errors.Is(err, security.ErrMalformedDigest) {
			s.log.Error().Err(err).Str("user_id", user.ID).Msg("stored password digest unreadable")
			return TokenPair{}, apperr.ErrMalformedDigest.Wrap(err)
		}
		return TokenPair{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.log.Warn().Str("user_id", user.ID).Str("reason", "bad_password").Msg("login rejected")
		return TokenPair{}, apperr.ErrInvalidCredentials
	}
	if !user.IsActive {
		return TokenPair{}, apperr.ErrInactiveUser
	}

	s.rehashIfNeeded(ctx, user, password)

	return s.issue(ctx, user)
}

// Refresh consumes token and returns a fresh pair. Of concurrent refreshes
// with the same token at most one succeeds.
func (s *AuthService) Refresh(ctx context.Context, token string) (TokenPair, error) {
	pair, err := s.refresh(ctx, token)
	s.record("refresh", err)
	return pair, err
}

func (s *AuthService) refresh(ctx context.Context, token string) (TokenPair, error) {
	subject, ok, err := s.sessions.Get(ctx, token)
	if err != nil {
		return TokenPair{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return TokenPair{}, apperr.ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			if _, derr := s.sessions.Delete(ctx, token); derr != nil {
				s.log.Warn().Err(derr).Str("user_id", subject).Msg("orphan session cleanup failed")
			}
			return TokenPair{}, apperr.ErrInvalidUser
		}
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}

	removed, err := s.sessions.Delete(ctx, token)
	if err != nil {
		return TokenPair{}, fmt.Errorf("consume session: %w", err)
	}
	if !removed {
		s.log.Warn().Str("user_id", subject).Str("reason", "replayed").Msg("refresh rejected")
		return TokenPair{}, apperr.ErrInvalidRefreshToken
	}
	if !user.IsActive {
		return TokenPair{}, apperr.ErrInactiveUser
	}

	return s.issue(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	err := s.logout(ctx, token)
	s.record("logout", err)
	return err
}

func (s *AuthService) logout(ctx context.Context, token string) error {
	removed, err := s.sessions.Delete(ctx, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !removed {
		return errLogoutRejected
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, user models.User) (TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user.ID, user.IsAdmin, s.cfg.AccessTokenTTL)
	if err != nil {
		if errors.Is(err, security.ErrUnencodableClaims) {
			return TokenPair{}, apperr.ErrUnencodableClaims.Wrap(err)
		}
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := security.GenerateRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.sessions.Put(ctx, refresh, user.ID, s.cfg.RefreshTokenTTL); err != nil {
		return TokenPair{}, fmt.Errorf("store session: %w", err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
	}, nil
}

func (s *AuthService) rehashIfNeeded(ctx context.Context, user models.User, password string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	digest, err := s.hasher.Hash(ctx, password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, user.ID, digest)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("password rehash failed")
		return
	}
	s.log.Info().Str("user_id", user.ID).Msg("password digest upgraded")
}

const decoyPassword = "decoy-password-never-matches"

// burnDecoy spends one verification on unknown usernames so they take about
// as long as a wrong password.
func (s *AuthService) burnDecoy(ctx context.Context, password string) {
	if s.decoyDigest != "" {
		_, _ = s.hasher.Verify(ctx, password, s.decoyDigest)
	}
}

func (s *AuthService) record(event string, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	s.metrics.RecordAuthEvent(event, outcome)
}
