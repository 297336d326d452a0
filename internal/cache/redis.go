package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"trendbot/internal/logging"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis is a Store backed by a shared Redis instance.
//
// Every operation fails open: errors are logged and surface as a miss on
// Get and a dropped write on Set. The pipeline must keep working when
// Redis is down.
type Redis struct {
	client *redis.Client
	log    logging.Logger
}

const opTimeout = 2 * time.Second

func NewRedis(cfg RedisConfig, log logging.Logger) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		// Connectivity at startup is advisory only; the store degrades to
		// misses until Redis comes back.
		log.Warn("redis unreachable at startup, cache will fail open", logging.Err(err))
	}
	return &Redis{client: client, log: log}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		r.log.Warn("cache get failed, treating as miss", logging.String("key", key), logging.Err(err))
		return "", false
	}
	return v, true
}

func (r *Redis) Set(ctx context.Context, key, payload string, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		r.log.Warn("cache set failed", logging.String("key", key), logging.Err(err))
	}
}

func (r *Redis) Close() error { return r.client.Close() }
