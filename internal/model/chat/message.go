package chat

// Sender identifies who authored a conversation turn.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one displayed turn. Insertion order is display order.
type Message struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// UserMessage builds a message authored by the visitor.
func UserMessage(text string) Message {
	return Message{Sender: SenderUser, Text: text}
}

// BotMessage builds a message authored by the backend (or a local apology).
func BotMessage(text string) Message {
	return Message{Sender: SenderBot, Text: text}
}
