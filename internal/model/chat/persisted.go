package chat

import (
	"encoding/json"
	"time"
)

// persisted mirrors Session with every field optional, so that fields
// missing from stored data keep their in-memory default on merge.
type persisted struct {
	ChatID          *string         `json:"chatId"`
	AskedInfo       json.RawMessage `json:"askedInfo"`
	DataVar         json.RawMessage `json:"dataVar"`
	ChatStarted     *bool           `json:"chatStarted"`
	PrivacyAccepted *bool           `json:"privacyAccepted"`
	FinalMessage    *bool           `json:"finalMessage"`
	Messages        *[]Message      `json:"messages"`
	BotIsTyping     *bool           `json:"botIsTyping"`
	WaitStart       *time.Time      `json:"waitStart"`
}

// Marshal serializes the whole session for durable storage.
func Marshal(s Session) ([]byte, error) {
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	return json.Marshal(s)
}

// Merge decodes stored data over base. Absent fields keep base's value. When
// the typing flag is absent it is recomputed: waiting iff no messages yet.
func Merge(base Session, data []byte) (Session, error) {
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return base, err
	}

	out := base.Clone()
	if p.ChatID != nil {
		out.ChatID = p.ChatID
	}
	if !isNull(p.AskedInfo) {
		out.AskedInfo = p.AskedInfo
	}
	if !isNull(p.DataVar) {
		out.DataVar = p.DataVar
	}
	if p.ChatStarted != nil {
		out.ChatStarted = *p.ChatStarted
	}
	if p.PrivacyAccepted != nil {
		out.PrivacyAccepted = *p.PrivacyAccepted
	}
	if p.FinalMessage != nil {
		out.FinalMessage = *p.FinalMessage
	}
	if p.Messages != nil {
		out.Messages = append([]Message{}, (*p.Messages)...)
	}
	if p.WaitStart != nil {
		out.WaitStart = p.WaitStart
	}
	if p.BotIsTyping != nil {
		out.BotIsTyping = *p.BotIsTyping
	} else {
		out.BotIsTyping = len(out.Messages) == 0
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
