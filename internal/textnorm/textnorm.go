// Package textnorm canonicalizes text fragments lifted out of HTML.
package textnorm

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const zeroWidthNonJoiner = "\u200c"

// Normalize NFKC-normalizes s, drops zero-width non-joiners, collapses whitespace
// runs to single spaces and trims the ends. It is idempotent.
//
// The joiner is removed before normalization so that characters it separated
// are composed in the same pass; otherwise a second call could compose them.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, zeroWidthNonJoiner, "")
	s = norm.NFKC.String(s)
	return strings.Join(strings.Fields(s), " ")
}
