package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL expires a tab scope after it was last written; 0 keeps it forever.
	TTL    time.Duration
	Prefix string
}

// RedisStore keeps each (scope, key) as one Redis string.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis store: empty addr")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "widget"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis store: ping")
	}
	return &RedisStore{client: client, ttl: opts.TTL, prefix: prefix}, nil
}

func (s *RedisStore) redisKey(scope, key string) string {
	return s.prefix + ":" + scope + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, scope, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.redisKey(scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis store: get %s/%s", scope, key)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, scope, key string, value []byte) error {
	if err := s.client.Set(ctx, s.redisKey(scope, key), value, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis store: set %s/%s", scope, key)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
