package chat

import (
	"encoding/json"
	"time"
)

// StorageKey is the key under which a tab's serialized Session is stored.
const StorageKey = "chatbotState"

// Session captures one browser tab's conversation state.
//
// AskedInfo and DataVar are continuation payloads owned by the backend; they
// are stored and resent verbatim and never inspected.
type Session struct {
	ChatID          *string         `json:"chatId"`
	AskedInfo       json.RawMessage `json:"askedInfo"`
	DataVar         json.RawMessage `json:"dataVar"`
	ChatStarted     bool            `json:"chatStarted"`
	PrivacyAccepted bool            `json:"privacyAccepted"`
	FinalMessage    bool            `json:"finalMessage"`
	Messages        []Message       `json:"messages"`
	BotIsTyping     bool            `json:"botIsTyping"`
	WaitStart       *time.Time      `json:"waitStart"`
}

// NewSession returns the defaults of a first load: no chat yet, waiting for
// the greeting.
func NewSession() Session {
	return Session{
		Messages:    []Message{},
		BotIsTyping: true,
	}
}

// HasChat reports whether the backend issued a chat identifier.
func (s Session) HasChat() bool {
	return s.ChatID != nil && *s.ChatID != ""
}

// InputLocked reports whether input and submit must be disabled.
func (s Session) InputLocked() bool {
	return s.BotIsTyping || s.FinalMessage
}

// Clone returns a deep copy safe to hand out of a lock.
func (s Session) Clone() Session {
	out := s
	if s.ChatID != nil {
		id := *s.ChatID
		out.ChatID = &id
	}
	if s.WaitStart != nil {
		ws := *s.WaitStart
		out.WaitStart = &ws
	}
	out.AskedInfo = cloneRaw(s.AskedInfo)
	out.DataVar = cloneRaw(s.DataVar)
	out.Messages = append(make([]Message, 0, len(s.Messages)), s.Messages...)
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
