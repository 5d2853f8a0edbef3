// Package sanitize cleans free text supplied by visitors and admins before it
// is stored or rendered in alert emails.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
	entityReplacer    = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&", "&quot;", `"`, "&#39;", "'")
)

// StripHTML removes markup, decoding common entities first so encoded tags are
// removed too.
func StripHTML(s string) string {
	out := tagPattern.ReplaceAllString(s, "")
	out = entityReplacer.Replace(out)
	out = tagPattern.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// Text strips markup, collapses runs of blanks and cuts the result to maxRunes.
// A maxRunes of zero or less means no limit.
func Text(s string, maxRunes int) string {
	out := whitespacePattern.ReplaceAllString(StripHTML(s), " ")
	if maxRunes > 0 && utf8.RuneCountInString(out) > maxRunes {
		out = strings.TrimSpace(string([]rune(out)[:maxRunes]))
	}
	return out
}

// TextPtr applies Text to an optional value. Values that end up empty become nil.
func TextPtr(s *string, maxRunes int) *string {
	if s == nil {
		return nil
	}
	out := Text(*s, maxRunes)
	if out == "" {
		return nil
	}
	return &out
}
