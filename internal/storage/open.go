package storage

import (
	"context"
	"fmt"
	"time"
)

// Options selects and configures a driver for Open.
type Options struct {
	Driver        string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// Open builds the Store named by opts.Driver ("memory", "sqlite" or "redis").
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "memory":
		return NewMemoryStoreTTL(opts.TTL, nil), nil
	case "sqlite":
		return NewSQLiteStore(opts.SQLitePath, opts.TTL)
	case "redis":
		return NewRedisStore(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			TTL:      opts.TTL,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
