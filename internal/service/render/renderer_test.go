package render

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/support-widget/internal/model/chat"
	"github.com/zhouzirui/support-widget/internal/service/session"
	"github.com/zhouzirui/support-widget/internal/storage"
)

type recorder struct {
	mu      sync.Mutex
	views   []ViewModel
	patches []string
}

func (r *recorder) Present(vm ViewModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, vm)
}

func (r *recorder) PatchTyping(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, text)
}

func (r *recorder) last() ViewModel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[len(r.views)-1]
}

func (r *recorder) patchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.patches)
}

func newRenderer(t *testing.T, opts Options) (*Renderer, *session.Store, *recorder, storage.Store) {
	t.Helper()
	backend := storage.NewMemoryStore()
	store := session.NewStore("tab-1", backend)
	rec := &recorder{}
	r := New(store, rec, opts)
	t.Cleanup(r.Cancel)
	return r, store, rec, backend
}

func TestRenderConversationMessages(t *testing.T) {
	r, _, _, _ := newRenderer(t, Options{AvatarURL: "/widget/img/bot-avatar.png"})

	vm := r.RenderConversation(chat.Session{
		PrivacyAccepted: true,
		Messages: []chat.Message{
			chat.BotMessage("Hallo! Wie kann ich **helfen**?"),
			chat.UserMessage("<b>Frage</b>"),
			chat.BotMessage("Antwort"),
		},
	})

	require.Len(t, vm.Messages, 3)
	assert.True(t, vm.ShowMessages)
	assert.False(t, vm.InputDisabled)
	assert.Nil(t, vm.Typing)
	assert.Equal(t, chat.PlaceholderInput, vm.Placeholder)
	assert.Equal(t, 1, vm.ScrollTo)

	bot := vm.Messages[0]
	assert.Equal(t, chat.SenderBot, bot.Sender)
	assert.Equal(t, "/widget/img/bot-avatar.png", bot.Avatar)
	require.Len(t, bot.Blocks, 1)
	assert.Contains(t, bot.Blocks[0].HTML, "<b>helfen</b>")

	user := vm.Messages[1]
	assert.Empty(t, user.Avatar)
	assert.Equal(t, "&lt;b&gt;Frage&lt;/b&gt;", user.Blocks[0].HTML)
	assert.Equal(t, "<b>Frage</b>", user.Blocks[0].Text)
}

func TestRenderConversationNoUserMessage(t *testing.T) {
	r, _, _, _ := newRenderer(t, Options{})

	vm := r.RenderConversation(chat.NewSession())
	assert.Equal(t, -1, vm.ScrollTo)
	assert.Empty(t, vm.Messages)
	assert.NotNil(t, vm.Messages)
	assert.True(t, vm.InputDisabled)
}

func TestRenderConversationSplitsLongBotMessages(t *testing.T) {
	r, _, _, _ := newRenderer(t, Options{MaxBlockLen: 40})

	text := strings.Repeat("Ein Satz mit Inhalt. ", 8)
	vm := r.RenderConversation(chat.Session{Messages: []chat.Message{chat.BotMessage(text)}})

	blocks := vm.Messages[0].Blocks
	require.Greater(t, len(blocks), 1)
	for _, b := range blocks {
		assert.LessOrEqual(t, len([]rune(b.Text)), 40)
	}
}

func TestRenderConversationSanitizesLinks(t *testing.T) {
	r, _, _, _ := newRenderer(t, Options{})

	vm := r.RenderConversation(chat.Session{Messages: []chat.Message{
		chat.BotMessage("Siehe [Hilfe](https://example.com/hilfe) oder <script>alert(1)</script>"),
	}})

	html := vm.Messages[0].Blocks[0].HTML
	assert.Contains(t, html, `href="https://example.com/hilfe"`)
	assert.Contains(t, html, `target="_blank"`)
	assert.Contains(t, html, ">Hilfe</a>")
	assert.NotContains(t, html, "<script")
}

func TestRenderConversationFinal(t *testing.T) {
	r, _, _, _ := newRenderer(t, Options{})

	vm := r.RenderConversation(chat.Session{FinalMessage: true, Messages: []chat.Message{chat.BotMessage("Auf Wiedersehen")}})
	assert.True(t, vm.Final)
	assert.True(t, vm.InputDisabled)
	assert.Equal(t, chat.PlaceholderFinal, vm.Placeholder)
}

func TestRenderConversationTypingFallback(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, _, _, _ := newRenderer(t, Options{
		Now:  func() time.Time { return now },
		Pick: func(n int) int { return n - 1 },
	})

	recent := now.Add(-DefaultFallbackDelay)
	vm := r.RenderConversation(chat.Session{BotIsTyping: true, WaitStart: &recent})
	require.NotNil(t, vm.Typing)
	assert.Empty(t, vm.Typing.Fallback, "exactly the delay still shows the placeholder")

	old := now.Add(-DefaultFallbackDelay - time.Millisecond)
	vm = r.RenderConversation(chat.Session{BotIsTyping: true, WaitStart: &old})
	require.NotNil(t, vm.Typing)
	assert.Equal(t, chat.FallbackPhrases[len(chat.FallbackPhrases)-1], vm.Typing.Fallback)

	vm = r.RenderConversation(chat.Session{BotIsTyping: true})
	assert.Empty(t, vm.Typing.Fallback)
}

func TestRenderStampsWaitStartAndSaves(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, store, rec, backend := newRenderer(t, Options{Now: func() time.Time { return now }})
	ctx := context.Background()

	require.NoError(t, r.Render(ctx))
	got := store.Snapshot()
	require.NotNil(t, got.WaitStart)
	assert.True(t, got.WaitStart.Equal(now))
	assert.NotNil(t, rec.last().Typing)

	_, err := backend.Get(ctx, "tab-1", chat.StorageKey)
	require.NoError(t, err)

	later := now.Add(time.Minute)
	r.opts.Now = func() time.Time { return later }
	require.NoError(t, r.Render(ctx))
	assert.True(t, store.Snapshot().WaitStart.Equal(now), "wait start is kept once set")
}

func TestStartTypingPatchesFallback(t *testing.T) {
	r, store, rec, _ := newRenderer(t, Options{FallbackDelay: 20 * time.Millisecond})
	store.Update(func(s *chat.Session) { s.BotIsTyping = false })

	r.StartTyping(context.Background())
	vm := rec.last()
	require.NotNil(t, vm.Typing)
	assert.True(t, vm.InputDisabled)
	assert.NotNil(t, store.Snapshot().WaitStart)

	require.Eventually(t, func() bool { return rec.patchCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, chat.FallbackPhrases, rec.patches[0])
}

func TestStopTypingCancelsFallback(t *testing.T) {
	r, store, rec, _ := newRenderer(t, Options{FallbackDelay: 20 * time.Millisecond})
	ctx := context.Background()

	r.StartTyping(ctx)
	r.StopTyping(ctx)

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, rec.patchCount())
	assert.Nil(t, rec.last().Typing)
	assert.False(t, store.Snapshot().BotIsTyping)
	assert.Nil(t, store.Snapshot().WaitStart)
}

func TestFallbackIgnoredWhenNoLongerTyping(t *testing.T) {
	r, store, rec, _ := newRenderer(t, Options{FallbackDelay: 20 * time.Millisecond})

	r.StartTyping(context.Background())
	store.Update(func(s *chat.Session) { s.BotIsTyping = false })

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, rec.patchCount())
}

func TestRestartTypingUsesLatestTimer(t *testing.T) {
	r, _, rec, _ := newRenderer(t, Options{FallbackDelay: 30 * time.Millisecond})
	ctx := context.Background()

	r.StartTyping(ctx)
	r.StartTyping(ctx)

	require.Eventually(t, func() bool { return rec.patchCount() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.patchCount())
}

// gatePresenter holds the first Present until release is closed.
type gatePresenter struct {
	recorder
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatePresenter) Present(vm ViewModel) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	g.recorder.Present(vm)
}

func TestConcurrentRenderPresentsLatestState(t *testing.T) {
	store := session.NewStore("tab-1", storage.NewMemoryStore())
	gate := &gatePresenter{entered: make(chan struct{}), release: make(chan struct{})}
	r := New(store, gate, Options{FallbackDelay: time.Hour})
	t.Cleanup(r.Cancel)
	ctx := context.Background()

	store.Update(func(s *chat.Session) {
		s.PrivacyAccepted = true
		s.BotIsTyping = true
	})

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		_ = r.Render(ctx)
	}()
	<-gate.entered

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		r.StopTyping(ctx)
	}()
	require.Eventually(t, func() bool { return !store.Snapshot().BotIsTyping }, time.Second, time.Millisecond)

	close(gate.release)
	<-rendered
	<-stopped

	last := gate.last()
	assert.Nil(t, last.Typing)
	assert.False(t, last.InputDisabled)
	assert.Len(t, gate.views, 2)
}
