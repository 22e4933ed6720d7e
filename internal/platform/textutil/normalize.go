package textutil

import (
	"strings"

	"golang.org/x/text/width"
)

// NormalizeName folds full-width characters to their narrow forms, trims the
// result, and collapses internal runs of whitespace to single spaces.
func NormalizeName(value string) string {
	folded := width.Fold.String(value)
	return strings.Join(strings.Fields(folded), " ")
}

// NormalizePhone canonicalises a phone number for exact-match lookups: folds
// full-width digits, keeps a single leading plus, and drops every other
// non-digit character.
func NormalizePhone(value string) string {
	folded := width.Fold.String(strings.TrimSpace(value))
	if folded == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(folded))
	for i, r := range folded {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
