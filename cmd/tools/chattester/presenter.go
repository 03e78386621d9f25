package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/support-widget/internal/model/chat"
	"github.com/zhouzirui/support-widget/internal/service/render"
)

var (
	userLabel = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	botLabel = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	statusStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("245"))
)

// terminalPresenter prints each ViewModel's new messages once. It never
// redraws, so it only appends what the previous view did not contain.
type terminalPresenter struct {
	mu      sync.Mutex
	out     io.Writer
	md      *glamour.TermRenderer
	printed int
	typing  bool
	final   bool
}

func newTerminalPresenter(out io.Writer, md *glamour.TermRenderer) *terminalPresenter {
	return &terminalPresenter{out: out, md: md}
}

func (p *terminalPresenter) Present(vm render.ViewModel) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.printed > len(vm.Messages) {
		p.printed = 0
	}
	for _, m := range vm.Messages[p.printed:] {
		p.printMessage(m)
	}
	p.printed = len(vm.Messages)

	if vm.Typing != nil && !p.typing {
		fmt.Fprintln(p.out, statusStyle.Render("Bot schreibt …"))
	}
	p.typing = vm.Typing != nil

	if vm.Final && !p.final {
		fmt.Fprintln(p.out, statusStyle.Render(vm.Placeholder))
	}
	p.final = vm.Final
}

func (p *terminalPresenter) PatchTyping(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, statusStyle.Render(text))
}

func (p *terminalPresenter) printMessage(m render.MessageView) {
	texts := make([]string, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		texts = append(texts, b.Text)
	}
	text := strings.Join(texts, "\n\n")

	if m.Sender == chat.SenderUser {
		fmt.Fprintf(p.out, "%s %s\n", userLabel.Render("Sie:"), text)
		return
	}

	if p.md != nil {
		if rendered, err := p.md.Render(text); err == nil {
			text = strings.TrimSpace(rendered)
		}
	}
	fmt.Fprintf(p.out, "%s %s\n", botLabel.Render("Bot:"), text)
}
