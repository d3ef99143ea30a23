package workmem

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Allreality/my-twin/internal/model"
)

// DefaultRedisPrefix namespaces session lists in Redis.
const DefaultRedisPrefix = "conversation:"

// RedisStore keeps each session as a Redis list of JSON turns. Every append
// trims the list to MaxTurns and refreshes the key's TTL, so an idle session
// expires on the server without a sweeper.
type RedisStore struct {
	client redis.UniversalClient
	opts   Options
	prefix string
}

// NewRedisStore wraps an existing Redis client. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, opts Options, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, opts: opts.WithDefaults(), prefix: prefix}
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisStore) Append(ctx context.Context, sessionID string, turns ...model.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	now := time.Now().UTC()
	values := make([]any, 0, len(turns))
	for _, t := range turns {
		if t.Timestamp.IsZero() {
			t.Timestamp = now
		}
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("workmem redis: marshal turn: %w", err)
		}
		values = append(values, b)
	}

	key := r.key(sessionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-r.opts.MaxTurns), -1)
		pipe.Expire(ctx, key, r.opts.IdleTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("workmem redis: append: %w", err)
	}
	return nil
}

func (r *RedisStore) Recent(ctx context.Context, sessionID string, n int) ([]model.Turn, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}
	raw, err := r.client.LRange(ctx, r.key(sessionID), start, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("workmem redis: lrange: %w", err)
	}

	turns := make([]model.Turn, 0, len(raw))
	for _, s := range raw {
		var t model.Turn
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("workmem redis: decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (r *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("workmem redis: del: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
