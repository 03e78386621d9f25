package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps tab scopes in a single SQLite table.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) the database at path. A positive ttl
// makes entries untouched for longer than ttl invisible.
func NewSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite store: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "sqlite store: create directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: open")
	}
	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, ttl: ttl}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		`CREATE TABLE IF NOT EXISTS tab_storage (
			scope      TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      BLOB NOT NULL,
			updated_ms INTEGER NOT NULL,
			PRIMARY KEY (scope, key)
		)`,
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "sqlite store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, scope, key string) ([]byte, error) {
	var (
		value     []byte
		updatedMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, updated_ms FROM tab_storage WHERE scope = ? AND key = ?`,
		scope, key,
	).Scan(&value, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite store: get %s/%s", scope, key)
	}
	if s.ttl > 0 && time.Since(time.UnixMilli(updatedMs)) > s.ttl {
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, scope, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tab_storage (scope, key, value, updated_ms) VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET
			value = excluded.value,
			updated_ms = excluded.updated_ms
	`, scope, key, value, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "sqlite store: set %s/%s", scope, key)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
