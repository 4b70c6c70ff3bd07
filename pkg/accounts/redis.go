package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"time"
)

var (
	_ Repository = (*redisRepository)(nil)
	_ Locker     = (*redisRepository)(nil)
)

// lockRetryInterval is how often a taken account lock is polled.
const lockRetryInterval = 20 * time.Millisecond

// unlockScript deletes a lock only if it's still held by the given token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// redisRepository is a Repository implementation that stores accounts as JSON documents in Redis.
type redisRepository struct {
	client *redis.Client
}

func accountKey(id string) string {
	return fmt.Sprintf("account:%s", id)
}

func lockKey(id string) string {
	return fmt.Sprintf("lock:account:%s", id)
}

// Lock takes a lease on the given account shared by every process using the same redis instance.
func (r *redisRepository) Lock(ctx context.Context, id string, ttl time.Duration) (func(), error) {
	if len(id) == 0 {
		return nil, ErrEmptyAccountID
	}
	key := lockKey(id)
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return nil, fmt.Errorf("failed to lock account: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to lock account: %w", ctx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		// A lock that can't be released expires after ttl.
		_ = unlockScript.Run(ctx, r.client, []string{key}, token).Err()
	}, nil
}

// Get retrieves an account from redis.
func (r *redisRepository) Get(ctx context.Context, id string) (Account, error) {
	if len(id) == 0 {
		return Account{}, ErrEmptyAccountID
	}
	data, err := r.client.Get(ctx, accountKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Account{}, ErrAccountNotFound
	} else if err != nil {
		return Account{}, fmt.Errorf("redis get failed: %w", err)
	}

	var acc Account
	if err = json.Unmarshal(data, &acc); err != nil {
		return Account{}, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return acc, nil
}

// Save stores an account in redis without expiration.
func (r *redisRepository) Save(ctx context.Context, account Account) error {
	if len(account.ID) == 0 {
		return ErrEmptyAccountID
	}
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	return r.client.Set(ctx, accountKey(account.ID), data, 0).Err()
}

// Close closes the underlying redis client.
func (r *redisRepository) Close() error {
	return r.client.Close()
}

// RedisRepository is a Repository backed by Redis that must be closed after use.
type RedisRepository interface {
	Repository
	Locker
	Close() error
}

// NewRedisRepository connects to the redis instance found at rawURL and returns a Repository using it.
func NewRedisRepository(rawURL string) (RedisRepository, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisRepository{client: client}, nil
}
