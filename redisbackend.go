package synapse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisBackend is the opt-in, cross-process StorageBackend (spec.md §4.1:
// "on platforms whose OS destroys regions when the creating process exits,
// a designated master bridge holds pinned handles"). Regions are Redis
// keys; a master bridge can pin them past any single process's lifetime by
// periodically refreshing their TTL (see sweeper.go).
//
// Grounded on Hola-to-network_logistics_problem's pkg/cache/redis.go
// (redis.NewClient + context.WithTimeout Ping on construction, Get/Set
// against []byte, errors.Is(err, redis.Nil) for a miss).
type redisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig configures an optional redis-backed Bridge storage region.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// PinTTL is how long an unreferenced region survives before the
	// sweeper's next pass; the sweeper refreshes it for regions still in
	// the local metadata table (spec.md §4.1 "pins unseen regions,
	// releases regions no longer referenced").
	PinTTL time.Duration
}

// NewRedisBackend constructs the opt-in redis-backed StorageBackend for
// Bridge, pinging the server once at construction time.
func NewRedisBackend(cfg RedisConfig) (StorageBackend, error) {
	return newRedisBackend(cfg)
}

func newRedisBackend(cfg RedisConfig) (*redisBackend, error) {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("synapse: redis backend ping failed: %w", err)
	}

	ttl := cfg.PinTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisBackend{client: client, ttl: ttl}, nil
}

func (r *redisBackend) Write(handle string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return r.client.Set(ctx, handle, payload, r.ttl).Err()
}

func (r *redisBackend) Read(handle string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	val, err := r.client.Get(ctx, handle).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

func (r *redisBackend) Delete(handle string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return r.client.Del(ctx, handle).Err()
}

// pin refreshes a region's TTL so a master bridge can keep it alive past
// the lifetime of the process that created it.
func (r *redisBackend) pin(handle string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return r.client.Expire(ctx, handle, r.ttl).Err()
}

func (r *redisBackend) Close() error {
	return r.client.Close()
}

// distributedLock is the redis-backed advisory-lock option for bridges
// spanning multiple OS processes: the in-memory Bridge.Lock only serialises
// goroutines within one process. This type provides a SETNX-style lock
// for that case; Bridge.Lock does not use it and nothing in this package
// constructs one.
// Grounded on the same repo's pkg/ratelimit/redis.go use of Lua-free
// SetNX+Expire for a cooperative, timeout-bounded mutex.
type distributedLock struct {
	client *redis.Client
}

func (d *distributedLock) tryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, "synapse:lock:"+key, owner, ttl).Result()
}

func (d *distributedLock) release(ctx context.Context, key, owner string) error {
	lockKey := "synapse:lock:" + key
	current, err := d.client.Get(ctx, lockKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	if current != owner {
		return nil
	}
	return d.client.Del(ctx, lockKey).Err()
}
