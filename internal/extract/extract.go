// Package extract pulls structured lead attributes (product interest,
// location) out of free-form customer messages.
package extract

import (
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"
)

// minMatchLen is the shortest input the extractors consider.
// Inputs of this many runes or fewer never match.
const minMatchLen = 3

// Extractor matches messages against a swappable set of tables.
// It is safe for concurrent use; SetTables replaces the tables atomically.
type Extractor struct {
	tables atomic.Pointer[Tables]
}

func New(t *Tables) *Extractor {
	if t == nil {
		t = DefaultTables()
	}
	e := &Extractor{}
	e.tables.Store(t.normalized())
	return e
}

// SetTables swaps in a new table set. In-flight calls keep the old one.
func (e *Extractor) SetTables(t *Tables) {
	if t != nil {
		e.tables.Store(t.normalized())
	}
}

// Tables returns the current table set.
func (e *Extractor) Tables() *Tables { return e.tables.Load() }

// ProductInterest returns the message (truncated) when it names a known
// product or carries a buying phrase.
func (e *Extractor) ProductInterest(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= minMatchLen {
		return "", false
	}
	t := e.tables.Load()
	lower := strings.ToLower(text)
	if !containsAny(lower, t.Products) && !containsAny(lower, t.BuyingPhrases) {
		return "", false
	}
	return truncate(text, t.MaxRequirementLen), true
}

// Location returns a normalized place for the first gazetteer tier that
// matches. Tier order decides, not position in the text:
//
//	local area   -> "<LocalRegion> - <Area>"
//	region city  -> "<City>, <Region>"
//	other city   -> "<City>"
func (e *Extractor) Location(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= minMatchLen {
		return "", false
	}
	t := e.tables.Load()
	lower := strings.ToLower(text)

	if area, ok := firstMatch(lower, t.LocalAreas); ok {
		return t.LocalRegion + " - " + TitleCase(area), true
	}
	if city, ok := firstMatch(lower, t.RegionCities); ok {
		return TitleCase(city) + ", " + t.Region, true
	}
	if city, ok := firstMatch(lower, t.OtherCities); ok {
		return TitleCase(city), true
	}
	return "", false
}

// IsLocal reports whether a normalized location is in the local region.
func (e *Extractor) IsLocal(location string) bool {
	return strings.HasPrefix(location, e.tables.Load().LocalRegion+" - ")
}

func containsAny(lower string, needles []string) bool {
	_, ok := firstMatch(lower, needles)
	return ok
}

func firstMatch(lower string, needles []string) (string, bool) {
	for _, n := range needles {
		if n != "" && strings.Contains(lower, n) {
			return n, true
		}
	}
	return "", false
}

// TitleCase upper-cases the first letter of every word.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prev := ' '
	for _, r := range s {
		if !isWordRune(prev) && isWordRune(r) {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
