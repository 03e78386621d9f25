package format

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const newContextAttrs = `target="_blank" rel="noopener noreferrer"`

var (
	mailLinkRe     = regexp.MustCompile(`\[([^\]]*)\]\(mailto:([^)\s]+)\)`)
	emailRe        = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)+`)
	markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)
	boldStarRe     = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUnderRe    = regexp.MustCompile(`__(.+?)__`)
	italicStarRe   = regexp.MustCompile(`(^|\s)\*([^*\s](?:[^*\n]*[^*\s])?)\*($|[^\w*])`)
	italicUnderRe  = regexp.MustCompile(`(^|\s)_([^_\s](?:[^_\n]*[^_\s])?)_($|[^\w_])`)
	bulletRe       = regexp.MustCompile(`(?m)^\* `)
	wwwRe          = regexp.MustCompile(`(^|[\s(>;])(www\.[^\s<]+)`)
	urlRe          = regexp.MustCompile(`https?://[^\s<]+`)
	anchorRe       = regexp.MustCompile(`(?s)<a\s[^>]*>.*?</a>`)
	anchorOpenRe   = regexp.MustCompile(`<a\s[^>]*>`)
	anchorMaskRe   = regexp.MustCompile(`<a#(\d+)>`)
	newlineRe      = regexp.MustCompile(`\r?\n`)

	escaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#039;",
	)

	// entities produced by Escape that can never be part of an autodetected link.
	linkStoppers = []string{"&quot;", "&#039;", "&lt;", "&gt;"}
)

// Render converts raw reply text into HTML. Stage order matters: mail links
// are unwrapped before escaping, and markdown links are converted before bare
// link detection so the latter never runs inside an existing anchor.
func Render(raw string) string {
	s := mailLinkRe.ReplaceAllString(raw, "${2}")
	s = collapseDuplicateEmails(s)
	s = Escape(s)
	s = linkMarkdown(s)
	s = outsideAnchors(s, linkEmails)
	s = outsideAnchorTags(s, emphasize)
	s = linkMarkdown(s)
	s = bulletRe.ReplaceAllString(s, "• ")
	s = outsideAnchors(s, linkWWW)
	s = outsideAnchors(s, linkURLs)
	return newlineRe.ReplaceAllString(s, "<br>")
}

// Escape replaces the five HTML-significant characters.
func Escape(s string) string {
	return escaper.Replace(s)
}

func linkMarkdown(s string) string {
	return markdownLinkRe.ReplaceAllString(s, `<a href="${2}" `+newContextAttrs+`>${1}</a>`)
}

func linkEmails(s string) string {
	return emailRe.ReplaceAllString(s, `<a href="mailto:${0}">${0}</a>`)
}

func emphasize(s string) string {
	s = boldStarRe.ReplaceAllString(s, "<b>${1}</b>")
	s = boldUnderRe.ReplaceAllString(s, "<b>${1}</b>")
	return italicize(s)
}

// italicize repeats until stable: the boundary groups consume the
// surrounding character, so adjacent spans need another pass.
func italicize(s string) string {
	for {
		next := italicStarRe.ReplaceAllString(s, "${1}<i>${2}</i>${3}")
		next = italicUnderRe.ReplaceAllString(next, "${1}<i>${2}</i>${3}")
		if next == s {
			return s
		}
		s = next
	}
}

func linkWWW(s string) string {
	return wwwRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := wwwRe.FindStringSubmatch(m)
		return sub[1] + autolink(sub[2], "http://")
	})
}

func linkURLs(s string) string {
	return urlRe.ReplaceAllStringFunc(s, func(m string) string {
		return autolink(m, "")
	})
}

// autolink wraps a detected token in an anchor. Punctuation the link cleaner
// trimmed off stays behind as plain text; collapsed dot-segments are dropped.
func autolink(token, scheme string) string {
	token, rest := cutAtEntity(token)
	url := CleanLink(token)
	if url == "" || strings.HasSuffix(url, "://") {
		return token + rest
	}

	body := strings.TrimRightFunc(token, unicode.IsSpace)
	kept := collapseDotSegments(body) + token[len(body):]
	tail := ""
	if strings.HasPrefix(kept, url) {
		tail = kept[len(url):]
	}
	return `<a href="` + scheme + url + `" ` + newContextAttrs + `>` + url + `</a>` + tail + rest
}

func cutAtEntity(token string) (string, string) {
	cut := len(token)
	for _, entity := range linkStoppers {
		if i := strings.Index(token, entity); i >= 0 && i < cut {
			cut = i
		}
	}
	return token[:cut], token[cut:]
}

// outsideAnchors applies fn to every stretch of s that is not inside an
// already generated anchor element.
func outsideAnchors(s string, fn func(string) string) string {
	locs := anchorRe.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return fn(s)
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(fn(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(fn(s[last:]))
	return b.String()
}

// outsideAnchorTags applies fn with every generated anchor opening tag masked,
// so inline markup may wrap a link label but never reaches into its href.
// Escaped text holds no raw '<', so the masks cannot collide with content.
func outsideAnchorTags(s string, fn func(string) string) string {
	var tags []string
	masked := anchorOpenRe.ReplaceAllStringFunc(s, func(tag string) string {
		tags = append(tags, tag)
		return "<a#" + strconv.Itoa(len(tags)-1) + ">"
	})
	if len(tags) == 0 {
		return fn(s)
	}
	return anchorMaskRe.ReplaceAllStringFunc(fn(masked), func(m string) string {
		i, err := strconv.Atoi(m[3 : len(m)-1])
		if err != nil || i >= len(tags) {
			return m
		}
		return tags[i]
	})
}

// collapseDuplicateEmails drops an address that repeats itself within four
// characters, e.g. "a@b.de (a@b.de)" -> "a@b.de)".
func collapseDuplicateEmails(s string) string {
	var b strings.Builder
	pos := 0
	for pos < len(s) {
		loc := emailRe.FindStringIndex(s[pos:])
		if loc == nil {
			break
		}
		end := pos + loc[1]
		addr := s[pos+loc[0] : end]
		b.WriteString(s[pos:end])
		pos = end
		if skip, ok := duplicateWithin(s[end:], addr, 4); ok {
			pos += skip
		}
	}
	b.WriteString(s[pos:])
	return b.String()
}

// duplicateWithin reports how many bytes of rest to drop when addr reappears
// after a gap of at most maxGap characters on the same line. Longer gaps win,
// matching a greedy scan.
func duplicateWithin(rest, addr string, maxGap int) (int, bool) {
	offsets := []int{0}
	for i, r := range rest {
		if len(offsets) > maxGap || r == '\n' {
			break
		}
		offsets = append(offsets, i+utf8.RuneLen(r))
	}
	for k := len(offsets) - 1; k >= 0; k-- {
		if strings.HasPrefix(rest[offsets[k]:], addr) {
			return offsets[k] + len(addr), true
		}
	}
	return 0, false
}
