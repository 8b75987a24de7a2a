package session

import (
	"context"
	"time"
)

const (
	tokenKeyPrefix = "refresh_token:"
	indexKeyPrefix = "refresh_sessions:"
)

// Store holds opaque refresh tokens mapped to the subject they were issued to.
// Delete must be atomic: of several concurrent callers with the same token,
// exactly one observes true.
type Store interface {
	Put(ctx context.Context, token, subject string, ttl time.Duration) error
	Get(ctx context.Context, token string) (subject string, ok bool, err error)
	Delete(ctx context.Context, token string) (bool, error)
	RevokeAll(ctx context.Context, subject string) (int, error)
}

func TokenKey(token string) string { return tokenKeyPrefix + token }

func IndexKey(subject string) string { return indexKeyPrefix + subject }
