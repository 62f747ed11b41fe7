// Package htmlsanitize cleans text that arrives from the model backend
// (retrain reasons, switch messages, error bodies) before it is shown.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// MaxLen caps the length of a cleaned message in runes.
const MaxLen = 500

var (
	strict     *bluemonday.Policy
	policyOnce sync.Once
)

func policy() *bluemonday.Policy {
	policyOnce.Do(func() {
		strict = bluemonday.StrictPolicy()
	})
	return strict
}

// Text strips every tag from s and returns plain text with entities decoded,
// whitespace collapsed and length capped. The result must still be escaped
// on output, which html/template does.
func Text(s string) string {
	if s == "" {
		return ""
	}
	out := html.UnescapeString(policy().Sanitize(s))
	out = strings.Join(strings.Fields(out), " ")
	return truncate(out)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxLen {
		return s
	}
	return string(r[:MaxLen-1]) + "…"
}
