package core

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
)

// Query is an ordered set of search terms. Every slot is an independent
// alternative: an object matches the query when it matches any slot.
type Query struct {
	Slots []string
}

func NewQuery(terms ...string) Query {
	return Query{Slots: terms}
}

// Patterns returns one glob pattern per non-empty slot. Terms without
// wildcards are turned into a substring pattern ("*term*").
func (q Query) Patterns() []string {
	patterns := make([]string, 0, len(q.Slots))

	for _, s := range q.Slots {
		s = strings.TrimSpace(s)

		if len(s) == 0 {
			continue
		}

		if !strings.ContainsAny(s, "*?[") {
			s = "*" + s + "*"
		}

		patterns = append(patterns, s)
	}

	return patterns
}

func (q Query) IsEmpty() bool {
	return len(q.Patterns()) == 0
}

func (q Query) String() string {
	return strings.Join(q.Patterns(), " | ")
}

// Matcher tests names against the case-folded patterns of a query.
type Matcher struct {
	patterns []string
}

func (q Query) Compile() (*Matcher, error) {
	fold := cases.Fold()

	m := Matcher{}

	for _, p := range q.Patterns() {
		p = fold.String(p)

		// Validate the pattern syntax once
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, err
		}

		m.patterns = append(m.patterns, p)
	}

	return &m, nil
}

func (m *Matcher) Match(name string) bool {
	name = cases.Fold().String(name)

	for _, p := range m.patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}

	return false
}
