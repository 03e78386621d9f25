// Package session owns one tab's conversation state and mirrors it to
// durable per-tab storage.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zhouzirui/support-widget/internal/model/chat"
	"github.com/zhouzirui/support-widget/internal/storage"
)

// Store is the injectable state container for a single tab. All mutations go
// through it; persistence happens only on an explicit Save.
type Store struct {
	mu      sync.Mutex
	tabID   string
	backend storage.Store
	state   chat.Session
}

// NewStore returns a Store holding first-load defaults for tabID.
func NewStore(tabID string, backend storage.Store) *Store {
	return &Store{
		tabID:   tabID,
		backend: backend,
		state:   chat.NewSession(),
	}
}

// TabID returns the storage scope of this store.
func (s *Store) TabID() string {
	return s.tabID
}

// Load merges previously saved fields over the in-memory defaults. Nothing
// stored yet is not an error. On corrupt data the defaults are kept and the
// decode error is returned.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.backend.Get(ctx, s.tabID, chat.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session %s: %w", s.tabID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := chat.Merge(s.state, data)
	if err != nil {
		return fmt.Errorf("decode session %s: %w", s.tabID, err)
	}
	s.state = merged
	return nil
}

// Save writes the entire session to storage.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	data, err := chat.Marshal(s.state)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.tabID, err)
	}

	if err := s.backend.Set(ctx, s.tabID, chat.StorageKey, data); err != nil {
		return fmt.Errorf("save session %s: %w", s.tabID, err)
	}
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Update applies fn to the state. The message list is append-only and is not
// writable through Update; use Append.
func (s *Store) Update(fn func(*chat.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := s.state.Messages
	next := s.state.Clone()
	fn(&next)
	next.Messages = messages
	s.state = next
}

// Append adds messages at the end of the conversation.
func (s *Store) Append(messages ...chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Messages = append(s.state.Messages, messages...)
}
