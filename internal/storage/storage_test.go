package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "tab-1", "chatbotState")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "tab-1", "chatbotState", []byte(`{"a":1}`)))
	require.NoError(t, s.Set(ctx, "tab-2", "chatbotState", []byte(`{"b":2}`)))

	got, err := s.Get(ctx, "tab-1", "chatbotState")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	require.NoError(t, s.Set(ctx, "tab-1", "chatbotState", []byte(`{"a":2}`)))
	got, err = s.Get(ctx, "tab-1", "chatbotState")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(got))

	got, err = s.Get(ctx, "tab-2", "chatbotState")
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(got))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, s.Set(ctx, "tab", "k", value))
	value[0] = 'x'

	got, err := s.Get(ctx, "tab", "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "widget.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "widget.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "tab", "chatbotState", []byte("persisted")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.Get(ctx, "tab", "chatbotState")
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(got))
}

func TestSQLiteStoreTTL(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "widget.db"), time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "tab", "k", []byte("v")))
	time.Sleep(20 * time.Millisecond)

	_, err = s.Get(ctx, "tab", "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStoreTTL(time.Minute, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "tab", "k", []byte("v")))
	now = now.Add(30 * time.Second)
	got, err := s.Get(ctx, "tab", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "tab", "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorePrunesExpiredScopes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStoreTTL(time.Minute, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "old", "k", []byte("v")))
	now = now.Add(2 * time.Minute)
	require.NoError(t, s.Set(ctx, "new", "k", []byte("v")))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotContains(t, s.scopes, "old")
	assert.Contains(t, s.scopes, "new")
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis storage test")
	}

	ctx := context.Background()
	s, err := NewRedisStore(ctx, RedisOptions{Addr: addr, Prefix: "widget-test-" + time.Now().Format("150405.000000")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "etcd"})
	require.Error(t, err)
}

func TestOpenDefaultsToMemory(t *testing.T) {
	s, err := Open(context.Background(), Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}
