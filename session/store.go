package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures from the Redis client.
var ErrRedisUnavailable = errors.New("redis unavailable")

const minIdleTimeout = time.Second

// RedisStore keeps one binary-encoded State per session ID with a sliding
// idle TTL: every read and write pushes expiry out by the idle timeout.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	idle   time.Duration
}

func NewRedisStore(client redis.UniversalClient, prefix string, idle time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "oss"
	}
	if idle < minIdleTimeout {
		idle = minIdleTimeout
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		idle:   idle,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Get returns the stored state, or the zero State when the session is
// unknown or idle-expired.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (State, error) {
	if sessionID == "" {
		return State{}, nil
	}

	data, err := s.redis.GetEx(ctx, s.key(sessionID), s.idle).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	state, err := Decode(data)
	if err != nil {
		// An unreadable blob is dropped; the caller starts over as anonymous.
		if delErr := s.redis.Del(ctx, s.key(sessionID)).Err(); delErr != nil {
			return State{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
		}
		return State{}, nil
	}

	return state, nil
}

// Put stores state. A zero state deletes the key instead.
func (s *RedisStore) Put(ctx context.Context, sessionID string, state State) error {
	if sessionID == "" {
		return errors.New("session id required")
	}
	if state.IsZero() {
		return s.Clear(ctx, sessionID)
	}

	data, err := Encode(state)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(sessionID), data, s.idle).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Clear is idempotent.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping measures round-trip latency to Redis.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
