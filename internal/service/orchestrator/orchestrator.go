// Package orchestrator wires user input to the transport client with
// bounded retries and keeps the view in step.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/support-widget/internal/model/chat"
	"github.com/zhouzirui/support-widget/internal/service/session"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

var (
	ErrEmptyMessage       = errors.New("message is empty")
	ErrConversationClosed = errors.New("conversation has ended")
	ErrNotConnected       = errors.New("no chat connection")
)

// Transport is the backend side of a tab. Implementations report failures
// as false and record their own apology.
type Transport interface {
	StartConversation(ctx context.Context) bool
	SendMessage(ctx context.Context, text string) bool
}

// View is the renderer side of a tab.
type View interface {
	Render(ctx context.Context) error
	StartTyping(ctx context.Context)
	StopTyping(ctx context.Context)
}

type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration
	// OnPhase observes every phase change. Optional.
	OnPhase func(Phase)
}

// Orchestrator serves one tab.
type Orchestrator struct {
	store     *session.Store
	transport Transport
	view      View
	opts      Options

	bootstrapping atomic.Bool
}

func New(store *session.Store, transport Transport, view View, opts Options) *Orchestrator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Orchestrator{store: store, transport: transport, view: view, opts: opts}
}

// Validate checks whether text may be submitted right now without changing
// anything.
func (o *Orchestrator) Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if o.store.Snapshot().FinalMessage {
		return ErrConversationClosed
	}
	return nil
}

// Submit runs one user turn to completion, retries included. Transport
// failures never surface as errors; they end in PhaseGaveUp with an apology
// in the conversation.
func (o *Orchestrator) Submit(ctx context.Context, text string) (Result, error) {
	if err := o.Validate(text); err != nil {
		return Result{Phase: PhaseRejected}, err
	}
	text = strings.TrimSpace(text)
	tab := o.store.TabID()

	o.store.Append(chat.UserMessage(text))
	o.render(ctx)
	o.view.StartTyping(ctx)

	if !o.store.Snapshot().HasChat() {
		o.view.StopTyping(ctx)
		o.store.Append(chat.BotMessage(chat.TextNotConnected))
		o.render(ctx)
		o.setPhase(PhaseRejected)
		log.Warn().Str("tab", tab).Msg("submit without chat connection")
		return Result{Phase: PhaseRejected}, ErrNotConnected
	}

	attempts, ok := o.retry(ctx, "send message", func(ctx context.Context) bool {
		return o.transport.SendMessage(ctx, text)
	})
	if !ok {
		o.view.StopTyping(ctx)
		o.store.Append(chat.BotMessage(chat.TextSendFailed))
		o.render(ctx)
		return Result{Phase: PhaseGaveUp, Attempts: attempts}, nil
	}

	o.render(ctx)
	return Result{Phase: PhaseDelivered, Attempts: attempts}, nil
}

// Bootstrap starts the conversation unless this session already has one or
// another bootstrap is running.
func (o *Orchestrator) Bootstrap(ctx context.Context) Result {
	if o.store.Snapshot().ChatStarted {
		return Result{Phase: PhaseIdle}
	}
	if !o.bootstrapping.CompareAndSwap(false, true) {
		return Result{Phase: PhaseIdle}
	}
	defer o.bootstrapping.Store(false)

	o.render(ctx)
	attempts, ok := o.retry(ctx, "start conversation", o.transport.StartConversation)
	if !ok {
		o.store.Append(chat.BotMessage(chat.TextCouldNotConnect))
		o.render(ctx)
		return Result{Phase: PhaseGaveUp, Attempts: attempts}
	}

	o.render(ctx)
	return Result{Phase: PhaseDelivered, Attempts: attempts}
}

// AcceptPrivacy records the consent and bootstraps the conversation.
func (o *Orchestrator) AcceptPrivacy(ctx context.Context) Result {
	o.store.Update(func(s *chat.Session) { s.PrivacyAccepted = true })
	o.render(ctx)
	return o.Bootstrap(ctx)
}

// Resume redraws a (re)opened tab and bootstraps if consent was given but no
// conversation exists yet.
func (o *Orchestrator) Resume(ctx context.Context) Result {
	o.render(ctx)
	snap := o.store.Snapshot()
	if snap.PrivacyAccepted && !snap.ChatStarted {
		return o.Bootstrap(ctx)
	}
	return Result{Phase: PhaseIdle}
}

func (o *Orchestrator) retry(ctx context.Context, what string, op func(ctx context.Context) bool) (int, bool) {
	tab := o.store.TabID()
	attempts, ok := WithRetries(ctx, o.opts.MaxAttempts, o.opts.RetryDelay, func(ctx context.Context, attempt int) bool {
		o.setPhase(PhaseSending)
		if op(ctx) {
			return true
		}
		if attempt < o.opts.MaxAttempts {
			o.setPhase(PhaseRetryPending)
			log.Warn().Str("tab", tab).Int("attempt", attempt).Msgf("%s failed, retrying", what)
		}
		return false
	})

	if ok {
		o.setPhase(PhaseDelivered)
	} else {
		o.setPhase(PhaseGaveUp)
		log.Error().Str("tab", tab).Int("attempts", attempts).Msgf("%s gave up", what)
	}
	return attempts, ok
}

func (o *Orchestrator) setPhase(p Phase) {
	if o.opts.OnPhase != nil {
		o.opts.OnPhase(p)
	}
}

func (o *Orchestrator) render(ctx context.Context) {
	if err := o.view.Render(ctx); err != nil {
		log.Warn().Err(err).Str("tab", o.store.TabID()).Msg("render failed")
	}
}
