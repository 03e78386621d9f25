package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeKeepsDefaultsForAbsentFields(t *testing.T) {
	base := NewSession()
	got, err := Merge(base, []byte(`{"privacyAccepted":true}`))
	require.NoError(t, err)

	assert.True(t, got.PrivacyAccepted)
	assert.Nil(t, got.ChatID)
	assert.Nil(t, got.AskedInfo)
	assert.Empty(t, got.Messages)
	assert.True(t, got.BotIsTyping, "no messages yet, so still waiting for the greeting")
}

func TestMergeNullPayloadsStayNil(t *testing.T) {
	data, err := Marshal(NewSession())
	require.NoError(t, err)

	got, err := Merge(NewSession(), data)
	require.NoError(t, err)
	assert.Nil(t, got.AskedInfo)
	assert.Nil(t, got.DataVar)
	assert.Equal(t, NewSession(), got)
}

func TestMergeRecomputesTypingForResumedSession(t *testing.T) {
	got, err := Merge(NewSession(), []byte(`{"messages":[{"sender":"user","text":"Hallo"}]}`))
	require.NoError(t, err)
	assert.False(t, got.BotIsTyping)
	assert.Equal(t, []Message{UserMessage("Hallo")}, got.Messages)
}

func TestMarshalUsesWidgetFieldNames(t *testing.T) {
	id := "abc"
	s := NewSession()
	s.ChatID = &id
	s.DataVar = json.RawMessage(`{"k":1}`)

	data, err := Marshal(s)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"chatId", "askedInfo", "dataVar", "chatStarted", "privacyAccepted", "finalMessage", "messages", "botIsTyping", "waitStart"} {
		assert.Contains(t, fields, key)
	}
	assert.JSONEq(t, `{"k":1}`, string(fields["dataVar"]))
}

func TestInputLocked(t *testing.T) {
	s := NewSession()
	assert.True(t, s.InputLocked())
	s.BotIsTyping = false
	assert.False(t, s.InputLocked())
	s.FinalMessage = true
	assert.True(t, s.InputLocked())
}
