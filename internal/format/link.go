package format

import (
	"regexp"
	"strings"
)

var (
	trailingDotSegmentsRe = regexp.MustCompile(`(?:/\.{1,2})+/?$`)
	trailingPunctRe       = regexp.MustCompile(`[)\]}>"'»«›‹”“’‘.,;:!?…\-–—]+$`)
	trailingSpaceRe       = regexp.MustCompile(`[\s\x{00A0}]+$`)
)

// CleanLink strips what prose tends to glue onto the end of an autodetected
// link: trailing "/." or "/.." segments collapse to "/", then closing
// brackets, quotes, sentence punctuation, dashes and trailing blanks
// (including no-break space) are removed. An empty input yields "".
func CleanLink(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = collapseDotSegments(s)
	s = trailingPunctRe.ReplaceAllString(s, "")
	return trailingSpaceRe.ReplaceAllString(s, "")
}

func collapseDotSegments(s string) string {
	return trailingDotSegmentsRe.ReplaceAllString(s, "/")
}
