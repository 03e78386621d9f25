package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/support-widget/internal/model/chat"
	"github.com/zhouzirui/support-widget/internal/storage"
)

func TestLoadWithoutStoredDataKeepsDefaults(t *testing.T) {
	s := NewStore("tab", storage.NewMemoryStore())
	require.NoError(t, s.Load(context.Background()))

	got := s.Snapshot()
	assert.Nil(t, got.ChatID)
	assert.Empty(t, got.Messages)
	assert.True(t, got.BotIsTyping)
	assert.False(t, got.PrivacyAccepted)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	waitStart := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	s := NewStore("tab", backend)
	s.Update(func(sess *chat.Session) {
		id := "7b46caba-7ecd-42c9-9618-6657f3c301f6"
		sess.ChatID = &id
		sess.AskedInfo = json.RawMessage(`{"slot":["name",1]}`)
		sess.DataVar = json.RawMessage(`[{"timestamp":"x","user_message":"hi"}]`)
		sess.ChatStarted = true
		sess.PrivacyAccepted = true
		sess.FinalMessage = true
		sess.BotIsTyping = true
		sess.WaitStart = &waitStart
	})
	s.Append(chat.UserMessage("Hallo"), chat.BotMessage("Guten Tag!"))
	require.NoError(t, s.Save(ctx))

	reloaded := NewStore("tab", backend)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, s.Snapshot(), reloaded.Snapshot())
}

func TestLoadRecomputesMissingTypingFlag(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()

	require.NoError(t, backend.Set(ctx, "resumed", chat.StorageKey,
		[]byte(`{"chatId":"c1","chatStarted":true,"messages":[{"sender":"bot","text":"Hallo"}]}`)))
	resumed := NewStore("resumed", backend)
	require.NoError(t, resumed.Load(ctx))
	assert.False(t, resumed.Snapshot().BotIsTyping)
	assert.Equal(t, "c1", *resumed.Snapshot().ChatID)

	require.NoError(t, backend.Set(ctx, "fresh", chat.StorageKey, []byte(`{"privacyAccepted":true}`)))
	fresh := NewStore("fresh", backend)
	require.NoError(t, fresh.Load(ctx))
	assert.True(t, fresh.Snapshot().BotIsTyping)
	assert.True(t, fresh.Snapshot().PrivacyAccepted)
}

func TestLoadCorruptDataKeepsDefaults(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	require.NoError(t, backend.Set(ctx, "tab", chat.StorageKey, []byte(`{not json`)))

	s := NewStore("tab", backend)
	require.Error(t, s.Load(ctx))
	assert.Equal(t, chat.NewSession(), s.Snapshot())
}

func TestUpdateCannotRewriteMessages(t *testing.T) {
	s := NewStore("tab", storage.NewMemoryStore())
	s.Append(chat.UserMessage("eins"))

	s.Update(func(sess *chat.Session) {
		sess.Messages = nil
		sess.PrivacyAccepted = true
	})

	got := s.Snapshot()
	assert.True(t, got.PrivacyAccepted)
	assert.Equal(t, []chat.Message{chat.UserMessage("eins")}, got.Messages)
}

func TestSnapshotIsDetached(t *testing.T) {
	s := NewStore("tab", storage.NewMemoryStore())
	s.Append(chat.BotMessage("a"))

	snap := s.Snapshot()
	snap.Messages[0].Text = "changed"
	assert.Equal(t, "a", s.Snapshot().Messages[0].Text)
}
