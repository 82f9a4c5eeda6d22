// Package sanitize strips markup and script payloads from free-text input
// before it is persisted.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxInputLength bounds sanitized output to keep oversized payloads from
// reaching the store.
const MaxInputLength = 10000

var (
	scriptBlockRe  = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	tagRe          = regexp.MustCompile(`<[^>]*>`)
	eventHandlerRe = regexp.MustCompile(`(?i)\bon\w+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]*)`)
	jsSchemeRe     = regexp.MustCompile(`(?i)javascript:`)
	dataSchemeRe   = regexp.MustCompile(`(?i)data:text/html`)
)

// Clean removes script blocks, remaining tag-delimited markup, inline event
// handler attributes and javascript:/data:text/html schemes, then trims and
// truncates. Stripping runs until a fixpoint so Clean(Clean(s)) == Clean(s)
// even when removals uncover new matches.
func Clean(input string) string {
	out := input
	for {
		next := scriptBlockRe.ReplaceAllString(out, "")
		next = tagRe.ReplaceAllString(next, "")
		next = eventHandlerRe.ReplaceAllString(next, "")
		next = jsSchemeRe.ReplaceAllString(next, "")
		next = dataSchemeRe.ReplaceAllString(next, "")
		if next == out {
			break
		}
		out = next
	}
	out = strings.TrimSpace(out)
	if runes := []rune(out); len(runes) > MaxInputLength {
		out = strings.TrimSpace(string(runes[:MaxInputLength]))
	}
	return out
}

// CleanSlice keeps only string entries, cleans each, and drops entries that
// end up empty.
func CleanSlice(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		cleaned := Clean(v)
		if cleaned == "" {
			continue
		}
		out = append(out, cleaned)
	}
	return out
}
