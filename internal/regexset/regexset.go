// Package regexset implements a minimal multi-pattern matcher over byte
// strings, the Go-idiomatic equivalent of the Rust regex crate's RegexSet
// used by the original relay's input_filter/input_blocklist handling
// (original_source/src/backends.rs). The standard library's regexp package
// has no built-in multi-pattern set, and no pack example repo pulls in a
// dedicated one, so this wraps a slice of *regexp.Regexp.
package regexset

import "regexp"

// Set reports whether any of its patterns match a given byte string.
type Set struct {
	patterns []*regexp.Regexp
}

// New compiles patterns into a Set. It returns an error if any pattern fails
// to compile.
func New(patterns []string) (*Set, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return &Set{patterns: compiled}, nil
}

// Match reports whether any pattern in the set matches b.
func (s *Set) Match(b []byte) bool {
	for _, re := range s.patterns {
		if re.Match(b) {
			return true
		}
	}
	return false
}

// Len reports the number of compiled patterns.
func (s *Set) Len() int {
	return len(s.patterns)
}
