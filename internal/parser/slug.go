package parser

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// FallbackCategory is used when the source crime type is empty.
const FallbackCategory = "other-crime"

// Slugify turns a crime-type label into a machine-readable slug:
// diacritics folded, lower-cased, runs of non-alphanumerics collapsed
// to a single hyphen, leading/trailing hyphens trimmed. Slugifying an
// already-slugged string returns it unchanged.
func Slugify(name string) string {
	folded := stripMarks(norm.NFD.String(name))

	var b strings.Builder
	b.Grow(len(folded))
	lastHyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return FallbackCategory
	}
	return slug
}

// Humanise converts a slug back to a display label,
// e.g. "other-crime" -> "Other Crime".
func Humanise(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// stripMarks removes combining marks left over after NFD decomposition.
func stripMarks(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
