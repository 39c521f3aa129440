package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldData    = "d"
	fieldVersion = "v"
)

// RedisStorage keeps each record in a Redis hash holding the payload and its
// version. Conditional writes run under WATCH/MULTI, so a concurrent writer
// aborts the transaction and surfaces as [ErrPreconditionFailed].
//
// In Redis Cluster every key passed to a single Write must hash to the same
// slot.
type RedisStorage struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Storage = (*RedisStorage)(nil)

// RedisOption configures a RedisStorage.
type RedisOption func(*RedisStorage)

// WithKeyPrefix namespaces every key as prefix + ":" + key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStorage) { s.prefix = prefix }
}

// WithRecordTTL sets a Redis expiry on every written record. Zero keeps
// records until deleted.
func WithRecordTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStorage) { s.ttl = ttl }
}

func NewRedisStorage(client redis.UniversalClient, opts ...RedisOption) *RedisStorage {
	s := &RedisStorage{redis: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStorage) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// Read fetches all keys in one pipelined round trip.
func (s *RedisStorage) Read(ctx context.Context, keys []string) (map[string]Record, error) {
	out := make(map[string]Record, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	cmds := make([]*redis.SliceCmd, len(keys))
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HMGet(ctx, s.key(k), fieldData, fieldVersion)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 2 || vals[0] == nil {
			continue
		}
		data, _ := vals[0].(string)
		version, _ := vals[1].(string)
		out[keys[i]] = Record{Data: []byte(data), Version: Version(version)}
	}
	return out, nil
}

// Write stores all changes in one MULTI block after checking every version
// under WATCH.
func (s *RedisStorage) Write(ctx context.Context, changes map[string]Record) error {
	if len(changes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, s.key(k))
	}

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		for k, rec := range changes {
			current, err := tx.HGet(ctx, s.key(k), fieldVersion).Result()
			exists := true
			if errors.Is(err, redis.Nil) {
				exists = false
			} else if err != nil {
				return err
			}
			if !versionMatches(rec.Version, exists, Version(current)) {
				return ErrPreconditionFailed
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for k, rec := range changes {
				key := s.key(k)
				pipe.HSet(ctx, key, fieldData, rec.Data, fieldVersion, uuid.NewString())
				if s.ttl > 0 {
					pipe.Expire(ctx, key, s.ttl)
				}
			}
			return nil
		})
		return err
	}, keys...)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, ErrPreconditionFailed):
		return ErrPreconditionFailed
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

func (s *RedisStorage) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Scan calls fn for every stored key matching pattern (relative to the
// configured prefix). Keys are passed without the prefix.
func (s *RedisStorage) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	iter := s.redis.Scan(ctx, 0, s.key(pattern), 256).Iterator()
	trim := 0
	if s.prefix != "" {
		trim = len(s.prefix) + 1
	}
	for iter.Next(ctx) {
		if err := fn(iter.Val()[trim:]); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}
