package transport

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/support-widget/internal/model/chat"
	"github.com/zhouzirui/support-widget/internal/service/session"
)

// Typing is the part of the renderer the client needs to end a wait.
type Typing interface {
	StopTyping(ctx context.Context)
}

// Client performs the two backend operations for one tab and applies their
// outcome to the session. Failures never escape: they are reported as false
// plus a bot apology, and the caller decides whether to retry.
type Client struct {
	api    API
	store  *session.Store
	typing Typing
}

// NewClient binds api to one tab's store and typing indicator.
func NewClient(api API, store *session.Store, typing Typing) *Client {
	return &Client{api: api, store: store, typing: typing}
}

// StartConversation performs the handshake.
func (c *Client) StartConversation(ctx context.Context) bool {
	resp, err := c.api.NewChat(ctx)
	if err != nil {
		log.Warn().Err(err).Str("tab", c.store.TabID()).Msg("start conversation failed")
		c.store.Update(func(s *chat.Session) { s.BotIsTyping = true })
		c.store.Append(chat.BotMessage(chat.TextConnectionProblem))
		return false
	}

	id := resp.ID
	greeting := resp.Greeting()
	c.store.Update(func(s *chat.Session) {
		s.ChatID = &id
		s.DataVar = resp.Data
		s.ChatStarted = true
		s.WaitStart = nil
		// The indicator clears even when the backend sent no greeting. Nothing
		// else is in flight then, and leaving it on would lock the input until
		// the first user turn, which a locked input can never send.
		s.BotIsTyping = false
	})
	if greeting != "" {
		c.store.Append(chat.BotMessage(greeting))
	}

	log.Info().Str("tab", c.store.TabID()).Str("chat_id", id).Bool("greeting", greeting != "").Msg("conversation started")
	return true
}

// SendMessage sends one user turn. The session must already hold a chat ID.
func (c *Client) SendMessage(ctx context.Context, userText string) bool {
	snap := c.store.Snapshot()
	if !snap.HasChat() {
		log.Warn().Str("tab", c.store.TabID()).Msg("send without chat id")
		return false
	}

	resp, err := c.api.ContinueChat(ctx, *snap.ChatID, ContinueRequest{
		AskedInfo: snap.AskedInfo,
		Data:      snap.DataVar,
		Message:   truncate(userText, MaxMessageLen),
	})
	if err != nil {
		log.Warn().Err(err).Str("tab", c.store.TabID()).Msg("send message failed")
		c.typing.StopTyping(ctx)
		c.store.Append(chat.BotMessage(chat.TextConnectionProblem))
		return false
	}

	if resp.Meta.TermsViolated {
		log.Info().Str("tab", c.store.TabID()).Int("message_number", resp.Meta.MessageNumber).Msg("backend flagged terms violation")
	}

	final := resp.Meta.IsFinal()
	c.store.Update(func(s *chat.Session) { s.FinalMessage = final })
	c.typing.StopTyping(ctx)
	c.store.Append(chat.BotMessage(resp.Message))

	// The backend may rotate both per turn; always adopt the latest.
	id := resp.ID
	c.store.Update(func(s *chat.Session) {
		if id != "" {
			s.ChatID = &id
		}
		s.DataVar = resp.Data
		if len(resp.AskedInfo) > 0 && string(resp.AskedInfo) != "null" {
			s.AskedInfo = resp.AskedInfo
		}
	})
	return true
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
