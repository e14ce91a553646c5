// Package identity derives stable canonical identifiers for retrieved items.
// Native identifiers (arXiv IDs, DOIs) are used verbatim; items without one
// get a truncated SHA-256 digest of a normalized title/year/venue composite.
package identity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// stripMarks decomposes to NFD and removes combining diacritical marks,
	// so "Café" and "Cafe" normalize identically.
	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

	nonAlnumRe = regexp.MustCompile(`[^a-z0-9\s]`)
	spacesRe   = regexp.MustCompile(`\s+`)
)

// NormalizeTitle standardizes a title for deduplication:
//  1. Unicode NFD decomposition with diacritic removal
//  2. Lowercase
//  3. Strip everything outside [a-z0-9 ]
//  4. Collapse runs of whitespace to a single space
//  5. Trim leading/trailing whitespace
//
// The result is idempotent and insensitive to case, accents, and punctuation.
func NormalizeTitle(title string) string {
	if title == "" {
		return ""
	}

	out, _, err := transform.String(stripMarks, title)
	if err != nil {
		// Transform only fails on malformed UTF-8; fall back to the raw
		// input so the caller still gets a deterministic key.
		out = title
	}

	out = strings.ToLower(out)
	out = nonAlnumRe.ReplaceAllString(out, "")
	out = spacesRe.ReplaceAllString(out, " ")

	return strings.TrimSpace(out)
}
