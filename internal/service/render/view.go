package render

import "github.com/zhouzirui/support-widget/internal/model/chat"

// BlockView is one rendered chunk of a message. HTML is safe to insert as
// markup; Text is the unformatted source.
type BlockView struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// MessageView is one entry of the conversation list. Bot messages carry an
// avatar and may span several blocks; user messages are a single block.
type MessageView struct {
	Sender chat.Sender `json:"sender"`
	Blocks []BlockView `json:"blocks"`
	Avatar string      `json:"avatar,omitempty"`
}

// TypingView is the waiting indicator. An empty Fallback means only the
// animated placeholder is shown.
type TypingView struct {
	Fallback string `json:"fallback,omitempty"`
}

// ViewModel is a declarative description of the whole widget.
type ViewModel struct {
	Messages      []MessageView `json:"messages"`
	Typing        *TypingView   `json:"typing,omitempty"`
	InputDisabled bool          `json:"inputDisabled"`
	Placeholder   string        `json:"placeholder"`
	Final         bool          `json:"final"`
	ShowMessages  bool          `json:"showMessages"`
	// ScrollTo is the index in Messages of the most recent user message,
	// -1 when there is none.
	ScrollTo int `json:"scrollTo"`
}

// Presenter performs the actual UI update.
type Presenter interface {
	// Present replaces everything on screen with vm.
	Present(vm ViewModel)
	// PatchTyping swaps the text of the visible typing indicator in place.
	PatchTyping(text string)
}

// PresenterFunc adapts a plain function to Presenter; typing patches are
// ignored.
type PresenterFunc func(ViewModel)

func (f PresenterFunc) Present(vm ViewModel) { f(vm) }

func (f PresenterFunc) PatchTyping(string) {}
