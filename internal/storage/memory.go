package storage

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value   []byte
	updated time.Time
}

// MemoryStore keeps values for the lifetime of the process, or until they
// have gone unwritten for longer than its TTL.
type MemoryStore struct {
	mu     sync.Mutex
	scopes map[string]map[string]memoryEntry

	ttl       time.Duration
	now       func() time.Time
	lastPrune time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store without expiry.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreTTL(0, nil)
}

// NewMemoryStoreTTL returns an empty in-memory store whose entries expire ttl
// after their last write. A nil now uses time.Now.
func NewMemoryStoreTTL(ttl time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		scopes: make(map[string]map[string]memoryEntry),
		ttl:    ttl,
		now:    now,
	}
}

func (s *MemoryStore) Get(_ context.Context, scope, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.scopes[scope][key]
	if !ok {
		return nil, ErrNotFound
	}
	if s.expired(entry, s.now()) {
		s.deleteLocked(scope, key)
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

func (s *MemoryStore) Set(_ context.Context, scope, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	bucket, ok := s.scopes[scope]
	if !ok {
		bucket = make(map[string]memoryEntry)
		s.scopes[scope] = bucket
	}
	bucket[key] = memoryEntry{value: append([]byte(nil), value...), updated: now}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) expired(entry memoryEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(entry.updated) > s.ttl
}

// pruneLocked drops expired entries at most once per TTL.
func (s *MemoryStore) pruneLocked(now time.Time) {
	if s.ttl <= 0 || now.Sub(s.lastPrune) < s.ttl {
		return
	}
	s.lastPrune = now
	for scope, bucket := range s.scopes {
		for key, entry := range bucket {
			if s.expired(entry, now) {
				s.deleteLocked(scope, key)
			}
		}
	}
}

func (s *MemoryStore) deleteLocked(scope, key string) {
	delete(s.scopes[scope], key)
	if len(s.scopes[scope]) == 0 {
		delete(s.scopes, scope)
	}
}
