package format

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultBlockLen is the display size of one bot bubble, in characters.
const DefaultBlockLen = 500

// SplitBlocks breaks a long reply into display blocks. Paragraph breaks
// followed by an uppercase letter are preferred; when that yields a single
// over-long block it is cut into windows of maxLen characters, each ending at
// the last line break or ". " inside the window when there is one. Blank
// blocks are dropped.
func SplitBlocks(text string, maxLen int) []string {
	blocks := splitParagraphs(text)
	if len(blocks) == 1 && maxLen > 0 && utf8.RuneCountInString(blocks[0]) > maxLen {
		blocks = chunk(blocks[0], maxLen)
	}

	out := blocks[:0]
	for _, b := range blocks {
		if strings.TrimSpace(b) != "" {
			out = append(out, b)
		}
	}
	return out
}

func splitParagraphs(text string) []string {
	var out []string
	start, i := 0, 0
	for {
		j := strings.Index(text[i:], "\n\n")
		if j < 0 {
			break
		}
		at := i + j
		r, _ := utf8.DecodeRuneInString(text[at+2:])
		if at+2 < len(text) && unicode.IsUpper(r) {
			out = append(out, text[start:at])
			start = at + 2
			i = start
			continue
		}
		i = at + 1
	}
	return append(out, text[start:])
}

func chunk(text string, maxLen int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > maxLen {
		window := runes[:maxLen]
		cut, skip := lastBoundary(window)
		if cut < 0 {
			out = append(out, string(window))
			runes = runes[maxLen:]
			continue
		}
		out = append(out, string(window[:cut]))
		runes = runes[cut+skip:]
	}
	return append(out, string(runes))
}

// lastBoundary finds the latest line break or ". " in window. The period
// stays with the block; the separator itself is consumed.
func lastBoundary(window []rune) (cut, skip int) {
	for i := len(window) - 1; i >= 0; i-- {
		switch {
		case window[i] == '\n':
			return i, 1
		case window[i] == '.' && i+1 < len(window) && window[i+1] == ' ':
			return i + 1, 1
		}
	}
	return -1, 0
}
