// Package chat keeps one live widget core per browser tab.
package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/support-widget/internal/service/orchestrator"
	"github.com/zhouzirui/support-widget/internal/service/render"
	"github.com/zhouzirui/support-widget/internal/service/session"
	"github.com/zhouzirui/support-widget/internal/service/transport"
	"github.com/zhouzirui/support-widget/internal/storage"
)

var (
	ErrInvalidTabID = errors.New("invalid tab id")
	ErrTabNotFound  = errors.New("tab not found")
)

// DefaultIdleTTL is how long an untouched tab stays in memory when no
// storage TTL is configured.
const DefaultIdleTTL = 30 * time.Minute

// PresenterFactory returns the presentation adapter for a tab.
type PresenterFactory func(tabID string) render.Presenter

// Config wires the per-tab components.
type Config struct {
	API          transport.API
	Storage      storage.Store
	Presenters   PresenterFactory
	Render       render.Options
	Orchestrator orchestrator.Options

	// IdleTTL evicts a tab nobody has touched for this long. Use the storage
	// TTL so memory and storage forget a tab together.
	IdleTTL time.Duration
	// Now is injectable for tests.
	Now     func() time.Time
}

// Tab bundles the components serving one browser tab.
type Tab struct {
	ID           string
	Store        *session.Store
	Renderer     *render.Renderer
	Orchestrator *orchestrator.Orchestrator

	now      func() time.Time
	lastSeen atomic.Int64
	holds    atomic.Int32
}

// Hold keeps the tab in memory while a turn or stream uses it. Call the
// returned release when done; extra calls are ignored.
func (t *Tab) Hold() (release func()) {
	t.holds.Add(1)
	t.touch()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.touch()
			t.holds.Add(-1)
		})
	}
}

func (t *Tab) touch() {
	t.lastSeen.Store(t.now().UnixNano())
}

func (t *Tab) idleFor(now time.Time) time.Duration {
	if t.holds.Load() > 0 {
		return 0
	}
	return now.Sub(time.Unix(0, t.lastSeen.Load()))
}

// View returns the current ViewModel without side effects.
func (t *Tab) View() render.ViewModel {
	return t.Renderer.RenderConversation(t.Store.Snapshot())
}

// Service encapsulates the live tabs.
type Service struct {
	cfg Config

	mu      sync.RWMutex
	tabs    map[string]*Tab
	onEvict []func(tabID string)
}

// NewService creates an empty registry.
func NewService(cfg Config) *Service {
	if cfg.Presenters == nil {
		cfg.Presenters = func(string) render.Presenter {
			return render.PresenterFunc(func(render.ViewModel) {})
		}
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{cfg: cfg, tabs: make(map[string]*Tab)}
}

// OnEvict registers fn to run after a tab has left memory.
func (s *Service) OnEvict(fn func(tabID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = append(s.onEvict, fn)
}

// CreateTab issues a new tab ID with first-load defaults.
func (s *Service) CreateTab(ctx context.Context) (*Tab, error) {
	tab := s.newTab(uuid.NewString())
	if err := tab.Store.Load(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tabs[tab.ID] = tab
	s.mu.Unlock()

	log.Info().Str("tab", tab.ID).Msg("tab created")
	return tab, nil
}

// Open returns the live tab for tabID, rehydrating it from storage when the
// gateway has not seen it since starting or evicted it as idle.
func (s *Service) Open(ctx context.Context, tabID string) (*Tab, error) {
	parsed, err := uuid.Parse(tabID)
	if err != nil {
		return nil, ErrInvalidTabID
	}
	id := parsed.String()

	s.mu.Lock()
	live, ok := s.tabs[id]
	if ok && live.idleFor(s.cfg.Now()) <= s.cfg.IdleTTL {
		live.touch()
		s.mu.Unlock()
		return live, nil
	}
	var listeners []func(string)
	if ok {
		delete(s.tabs, id)
		listeners = s.onEvict
	}
	s.mu.Unlock()
	if ok {
		s.evicted(live, listeners)
	}

	tab := s.newTab(id)
	if err := tab.Store.Load(ctx); err != nil {
		// Corrupt data leaves the defaults in place; the tab stays usable.
		log.Warn().Err(err).Str("tab", id).Msg("could not restore session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tabs[id]; ok {
		return existing, nil
	}
	s.tabs[id] = tab
	log.Info().Str("tab", id).Msg("tab restored")
	return tab, nil
}

// Get returns a live tab without touching storage.
func (s *Service) Get(tabID string) (*Tab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tab, ok := s.tabs[tabID]
	if !ok {
		return nil, ErrTabNotFound
	}
	return tab, nil
}

// Sweep evicts every tab idle for longer than IdleTTL and reports how many
// went. Tabs held by a turn or stream stay.
func (s *Service) Sweep() int {
	now := s.cfg.Now()

	s.mu.Lock()
	var gone []*Tab
	for id, tab := range s.tabs {
		if tab.idleFor(now) > s.cfg.IdleTTL {
			delete(s.tabs, id)
			gone = append(gone, tab)
		}
	}
	listeners := s.onEvict
	s.mu.Unlock()

	for _, tab := range gone {
		s.evicted(tab, listeners)
	}
	return len(gone)
}

// RunJanitor sweeps every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Debug().Int("evicted", n).Int("live", s.Tabs()).Msg("idle tabs evicted")
			}
		}
	}
}

func (s *Service) evicted(tab *Tab, listeners []func(string)) {
	tab.Renderer.Cancel()
	for _, fn := range listeners {
		fn(tab.ID)
	}
	log.Info().Str("tab", tab.ID).Msg("idle tab evicted")
}

// Tabs reports how many tabs are live.
func (s *Service) Tabs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tabs)
}

// Close cancels every pending typing timer.
func (s *Service) Close() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tab := range s.tabs {
		tab.Renderer.Cancel()
	}
}

func (s *Service) newTab(id string) *Tab {
	store := session.NewStore(id, s.cfg.Storage)
	renderer := render.New(store, s.cfg.Presenters(id), s.cfg.Render)
	client := transport.NewClient(s.cfg.API, store, renderer)
	tab := &Tab{
		ID:           id,
		Store:        store,
		Renderer:     renderer,
		Orchestrator: orchestrator.New(store, client, renderer, s.cfg.Orchestrator),
		now:          s.cfg.Now,
	}
	tab.touch()
	return tab
}
