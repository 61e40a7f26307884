package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

// RedisConfig configures the Redis cache.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all keys (e.g., "alphaflow:")
	Prefix string

	// TTL is the time-to-live for entries (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "alphaflow:",
		TTL:      24 * time.Hour,
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// Redis stores entries as JSON strings.
type Redis struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedis connects to Redis and pings it.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, lferrors.Wrap(err, lferrors.CodeCache, "failed to connect to Redis").
			WithContext("addr", cfg.Address)
	}

	return &Redis{cfg: cfg, client: client}, nil
}

func (r *Redis) key(k string) string {
	return r.cfg.Prefix + "model:" + k
}

// Get returns the entry for key, or nil on a miss.
func (r *Redis) Get(ctx context.Context, key string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeCache, "failed to read cache entry").WithContext("key", key)
	}
	return decode(data)
}

// Set stores e under key with the configured TTL.
func (r *Redis) Set(ctx context.Context, key string, e *Entry) error {
	data, err := encode(e)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.key(key), data, r.cfg.TTL).Err(); err != nil {
		return lferrors.Wrap(err, lferrors.CodeCache, "failed to write cache entry").WithContext("key", key)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
