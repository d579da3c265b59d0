// Package toc builds heading outlines for rendered posts and tracks which
// heading is active while the reader scrolls.
package toc

import (
	"strconv"
	"strings"
	"unicode"
)

// Slugger generates URL-fragment-safe ids and resolves collisions by
// appending -1, -2, ... in first-seen order. A Slugger is not safe for
// concurrent use; create one per document.
type Slugger struct {
	occurrences map[string]int
}

// NewSlugger returns an empty Slugger.
func NewSlugger() *Slugger {
	return &Slugger{occurrences: make(map[string]int)}
}

// Slug returns a unique id for value within this Slugger's document.
func (s *Slugger) Slug(value string) string {
	base := Slugify(value)
	result := base
	for s.seen(result) {
		s.occurrences[base]++
		result = base + "-" + strconv.Itoa(s.occurrences[base])
	}
	s.occurrences[result] = 0
	return result
}

// Reserve marks id as taken without transforming it, so explicit anchors
// are never reissued by Slug.
func (s *Slugger) Reserve(id string) {
	if !s.seen(id) {
		s.occurrences[id] = 0
	}
}

// Reset forgets every id issued so far.
func (s *Slugger) Reset() {
	s.occurrences = make(map[string]int)
}

func (s *Slugger) seen(id string) bool {
	if s.occurrences == nil {
		s.occurrences = make(map[string]int)
	}
	_, ok := s.occurrences[id]
	return ok
}

// Slugify lowercases value, drops everything but letters, marks, digits,
// underscores, hyphens and spaces, then turns each space into a hyphen.
func Slugify(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range strings.ToLower(value) {
		switch {
		case r == ' ':
			b.WriteByte('-')
		case r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsLetter(r), unicode.IsMark(r), unicode.IsNumber(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}
