// Package storage provides the durable per-tab key/value scope the widget
// mirrors its session into.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key was never written in a scope.
var ErrNotFound = errors.New("storage: key not found")

// Store persists opaque values under (scope, key). A scope corresponds to one
// browser tab. Writes are synchronous.
type Store interface {
	Get(ctx context.Context, scope, key string) ([]byte, error)
	Set(ctx context.Context, scope, key string, value []byte) error
	Close() error
}
