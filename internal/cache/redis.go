package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces balance entries in Redis.
const KeyPrefix = "user_balance:"

// Redis is a Substrate shared by every coordinator process.
type Redis struct {
	rdb *redis.Client
}

var _ Substrate = (*Redis)(nil)

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Timeout bounds every command; zero uses 500ms.
	Timeout time.Duration
}

// NewRedis creates a Redis substrate. The connection is established lazily.
func NewRedis(opts RedisOptions) *Redis {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   1,
	})
	return &Redis{rdb: rdb}
}

func balanceKey(accountID int64) string {
	return KeyPrefix + strconv.FormatInt(accountID, 10)
}

// Get reads the balance. redis.Nil is a miss; anything else is an error.
func (r *Redis) Get(ctx context.Context, accountID int64) (int64, bool, error) {
	raw, err := r.rdb.Get(ctx, balanceKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	balance, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// A corrupt entry is dropped rather than served.
		_ = r.rdb.Del(ctx, balanceKey(accountID)).Err()
		return 0, false, nil
	}
	return balance, true, nil
}

// Set writes the balance with SET ... EX ttl.
func (r *Redis) Set(ctx context.Context, accountID, balance int64, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, balanceKey(accountID), balance, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Delete removes the entry.
func (r *Redis) Delete(ctx context.Context, accountID int64) error {
	if err := r.rdb.Del(ctx, balanceKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
