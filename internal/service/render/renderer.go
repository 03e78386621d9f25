// Package render turns a tab's session into ViewModels and drives the typing
// indicator.
package render

import (
	"context"
	"math/rand/v2"
	"regexp"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/support-widget/internal/format"
	"github.com/zhouzirui/support-widget/internal/model/chat"
	"github.com/zhouzirui/support-widget/internal/service/session"
)

// DefaultFallbackDelay is how long the plain indicator is shown before a
// fallback phrase replaces it.
const DefaultFallbackDelay = 8 * time.Second

// Options tune a Renderer. Zero values select the defaults.
type Options struct {
	FallbackDelay time.Duration
	MaxBlockLen   int
	AvatarURL     string
	// Now and Pick are injectable for tests.
	Now  func() time.Time
	Pick func(n int) int
}

func (o Options) withDefaults() Options {
	if o.FallbackDelay <= 0 {
		o.FallbackDelay = DefaultFallbackDelay
	}
	if o.MaxBlockLen <= 0 {
		o.MaxBlockLen = format.DefaultBlockLen
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Pick == nil {
		o.Pick = rand.IntN
	}
	return o
}

// Renderer projects one tab's Session onto a Presenter.
type Renderer struct {
	store     *session.Store
	presenter Presenter
	opts      Options
	policy    *bluemonday.Policy

	// renderMu orders snapshot and Present so a newer view is never
	// overtaken by an older one.
	renderMu sync.Mutex

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// New creates a Renderer for store that draws on presenter.
func New(store *session.Store, presenter Presenter, opts Options) *Renderer {
	return &Renderer{
		store:     store,
		presenter: presenter,
		opts:      opts.withDefaults(),
		policy:    blockPolicy(),
	}
}

// blockPolicy allows exactly the markup the formatter emits.
func blockPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "br")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	p.AllowAttrs("rel").Matching(regexp.MustCompile(`^[a-z ]+$`)).OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	return p
}

// RenderConversation builds the ViewModel for s without side effects.
func (r *Renderer) RenderConversation(s chat.Session) ViewModel {
	vm := ViewModel{
		Messages:      make([]MessageView, 0, len(s.Messages)),
		InputDisabled: s.InputLocked(),
		Placeholder:   chat.PlaceholderInput,
		Final:         s.FinalMessage,
		ShowMessages:  s.PrivacyAccepted,
		ScrollTo:      -1,
	}
	if s.FinalMessage {
		vm.Placeholder = chat.PlaceholderFinal
	}

	for _, m := range s.Messages {
		if m.Sender == chat.SenderUser {
			vm.ScrollTo = len(vm.Messages)
			vm.Messages = append(vm.Messages, MessageView{
				Sender: chat.SenderUser,
				Blocks: []BlockView{{HTML: format.Escape(m.Text), Text: m.Text}},
			})
			continue
		}
		vm.Messages = append(vm.Messages, r.botMessage(m.Text))
	}

	if s.BotIsTyping {
		vm.Typing = &TypingView{}
		if s.WaitStart != nil && r.opts.Now().Sub(*s.WaitStart) > r.opts.FallbackDelay {
			vm.Typing.Fallback = r.fallbackPhrase()
		}
	}
	return vm
}

func (r *Renderer) botMessage(text string) MessageView {
	blocks := format.SplitBlocks(text, r.opts.MaxBlockLen)
	out := MessageView{
		Sender: chat.SenderBot,
		Blocks: make([]BlockView, 0, len(blocks)),
		Avatar: r.opts.AvatarURL,
	}
	for _, b := range blocks {
		out.Blocks = append(out.Blocks, BlockView{
			HTML: r.policy.Sanitize(format.Render(b)),
			Text: b,
		})
	}
	return out
}

func (r *Renderer) fallbackPhrase() string {
	return chat.FallbackPhrases[r.opts.Pick(len(chat.FallbackPhrases))]
}

// Render redraws the whole widget and saves the session. The wait start is
// stamped on the first render that shows the indicator.
func (r *Renderer) Render(ctx context.Context) error {
	r.renderMu.Lock()
	now := r.opts.Now()
	r.store.Update(func(s *chat.Session) {
		if s.BotIsTyping && s.WaitStart == nil {
			s.WaitStart = &now
		}
	})
	r.presenter.Present(r.RenderConversation(r.store.Snapshot()))
	r.renderMu.Unlock()

	return r.store.Save(ctx)
}

// StartTyping shows the indicator right away and arms the fallback swap.
func (r *Renderer) StartTyping(ctx context.Context) {
	r.store.Update(func(s *chat.Session) {
		s.BotIsTyping = true
		s.WaitStart = nil
	})
	r.renderLogged(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimerLocked()
	gen := r.gen
	r.timer = time.AfterFunc(r.opts.FallbackDelay, func() { r.patchFallback(gen) })
}

// StopTyping hides the indicator and cancels a pending fallback swap.
func (r *Renderer) StopTyping(ctx context.Context) {
	r.Cancel()
	r.store.Update(func(s *chat.Session) {
		s.BotIsTyping = false
		s.WaitStart = nil
	})
	r.renderLogged(ctx)
}

// Cancel drops a pending fallback swap without touching the session.
func (r *Renderer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimerLocked()
}

func (r *Renderer) stopTimerLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// patchFallback runs on the timer goroutine. It only changes displayed text
// and is a no-op once the reply has arrived.
func (r *Renderer) patchFallback(gen uint64) {
	r.renderMu.Lock()
	defer r.renderMu.Unlock()

	r.mu.Lock()
	current := gen == r.gen
	r.mu.Unlock()
	if !current || !r.store.Snapshot().BotIsTyping {
		return
	}
	r.presenter.PatchTyping(r.fallbackPhrase())
}

func (r *Renderer) renderLogged(ctx context.Context) {
	if err := r.Render(ctx); err != nil {
		log.Warn().Err(err).Str("tab", r.store.TabID()).Msg("save after render failed")
	}
}
