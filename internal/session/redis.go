package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps each token under refresh_token:<token> with a TTL and
// tracks the tokens of a subject in the set refresh_sessions:<subject>.
type RedisStore struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisStore(client *redis.Client, log zerolog.Logger) *RedisStore {
	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Put(ctx context.Context, token, subject string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, TokenKey(token), subject, ttl)
	pipe.SAdd(ctx, IndexKey(subject), token)
	pipe.Expire(ctx, IndexKey(subject), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (string, bool, error) {
	subject, err := s.client.Get(ctx, TokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load refresh token: %w", err)
	}
	return subject, true, nil
}

// Delete relies on GETDEL so only one concurrent caller sees the value.
func (s *RedisStore) Delete(ctx context.Context, token string) (bool, error) {
	subject, err := s.client.GetDel(ctx, TokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}

	if err := s.client.SRem(ctx, IndexKey(subject), token).Err(); err != nil {
		s.log.Warn().Err(err).Str("user_id", subject).Msg("refresh index cleanup failed")
	}
	return true, nil
}

func (s *RedisStore) RevokeAll(ctx context.Context, subject string) (int, error) {
	tokens, err := s.client.SMembers(ctx, IndexKey(subject)).Result()
	if err != nil {
		return 0, fmt.Errorf("list refresh tokens: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(tokens))
	for _, token := range tokens {
		keys = append(keys, TokenKey(token))
	}

	pipe := s.client.TxPipeline()
	removed := pipe.Del(ctx, keys...)
	pipe.SRem(ctx, IndexKey(subject), toInterfaces(tokens)...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return int(removed.Val()), nil
}

// PruneIndexes drops index members whose token key has already expired.
func (s *RedisStore) PruneIndexes(ctx context.Context) (int, error) {
	pruned := 0
	iter := s.client.Scan(ctx, 0, indexKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		indexKey := iter.Val()
		tokens, err := s.client.SMembers(ctx, indexKey).Result()
		if err != nil {
			return pruned, fmt.Errorf("list %s: %w", indexKey, err)
		}

		var stale []interface{}
		for _, token := range tokens {
			exists, err := s.client.Exists(ctx, TokenKey(token)).Result()
			if err != nil {
				return pruned, fmt.Errorf("check token: %w", err)
			}
			if exists == 0 {
				stale = append(stale, token)
			}
		}
		if len(stale) == 0 {
			continue
		}
		if err := s.client.SRem(ctx, indexKey, stale...).Err(); err != nil {
			return pruned, fmt.Errorf("prune %s: %w", indexKey, err)
		}
		pruned += len(stale)
		s.log.Debug().
			Str("user_id", strings.TrimPrefix(indexKey, indexKeyPrefix)).
			Int("pruned", len(stale)).
			Msg("pruned refresh index")
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("scan refresh indexes: %w", err)
	}
	return pruned, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
