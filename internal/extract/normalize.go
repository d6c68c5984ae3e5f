package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ironsheep/medscan-mcp/internal/locale"
)

// Normalize keeps letters, digits and whitespace, collapses runs of
// whitespace to one space and trims the result.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsNumber(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// Fold returns the comparison key of s: case-folded with combining marks
// (Latin accents, Arabic harakat) removed. Two candidates are duplicates
// when their keys are equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(strings.TrimSpace(stripped))
}

// IsPlaceholder reports whether s is a localized "no medication found"
// notice rather than a medication name. Callers receiving candidate lists
// from older clients should drop such entries.
func IsPlaceholder(s string) bool {
	key := Fold(s)
	if key == "" {
		return false
	}
	for _, lang := range []locale.Language{locale.English, locale.Arabic} {
		if key == Fold(lang.NotFound()) {
			return true
		}
	}
	return false
}

// DropPlaceholders returns candidates without placeholder entries.
func DropPlaceholders(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !IsPlaceholder(c) {
			out = append(out, c)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func isDigit(r rune) bool { return unicode.IsDigit(r) || unicode.IsNumber(r) }

// numeric reports whether s holds no letters.
func numeric(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// allUpper reports whether s has at least one cased letter and no lowercase.
func allUpper(s string) bool {
	upper := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			upper = true
		}
	}
	return upper
}

// capitalized reports whether s starts with an uppercase letter.
func capitalized(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

// trimWord strips leading and trailing runes that are neither letters nor
// digits, keeping inner hyphens.
func trimWord(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !isDigit(r)
	})
}

// collector accumulates unique candidates in insertion order.
type collector struct {
	seen  map[string]struct{}
	items []string
}

func newCollector() *collector {
	return &collector{seen: make(map[string]struct{})}
}

func (c *collector) add(s string) bool {
	key := Fold(s)
	if key == "" {
		return false
	}
	if _, dup := c.seen[key]; dup {
		return false
	}
	c.seen[key] = struct{}{}
	c.items = append(c.items, s)
	return true
}

func (c *collector) len() int { return len(c.items) }
