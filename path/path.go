// Package path implements the path algebra over nested dataset values:
// a Path is an ordered sequence of Selectors, each naming a field, a
// list index, or the wildcard "every element."
package path

import (
	"strconv"
	"strings"
)

// SelectorKind distinguishes the three ways a Path segment can address
// a node: a named struct field, a concrete list index, or "all of them."
type SelectorKind int

const (
	// Name selects a struct field by name.
	Name SelectorKind = iota
	// Index selects one element of a repeated field.
	Index
	// Wildcard selects every element of a repeated field.
	Wildcard
)

// Selector is a single segment of a Path.
type Selector struct {
	kind  SelectorKind
	name  string
	index int
}

// NewName builds a field-name selector.
func NewName(name string) Selector { return Selector{kind: Name, name: name} }

// NewIndex builds a concrete list-index selector.
func NewIndex(i int) Selector { return Selector{kind: Index, index: i} }

// NewWildcard builds the "*" selector.
func NewWildcard() Selector { return Selector{kind: Wildcard} }

// Kind reports which of Name, Index, or Wildcard this selector is.
func (s Selector) Kind() SelectorKind { return s.kind }

// Name returns the field name for a Name selector (empty otherwise).
func (s Selector) Name() string { return s.name }

// Index returns the concrete index for an Index selector (-1 otherwise).
func (s Selector) Index() int {
	if s.kind != Index {
		return -1
	}
	return s.index
}

// String renders the selector the way Path.String joins it.
func (s Selector) String() string {
	switch s.kind {
	case Name:
		return s.name
	case Index:
		return strconv.Itoa(s.index)
	case Wildcard:
		return "*"
	default:
		return "?"
	}
}

// matches reports whether two selectors match: equal names, equal
// indices, or either side being a wildcard against an index/wildcard.
func (s Selector) matches(other Selector) bool {
	if s.kind == Wildcard || other.kind == Wildcard {
		// A wildcard matches any index-shaped selector, but a Name
		// selector never matches an Index/Wildcard and vice versa.
		if s.kind == Name || other.kind == Name {
			return s.kind == Name && other.kind == Name && s.name == other.name
		}
		return true
	}
	if s.kind != other.kind {
		return false
	}
	switch s.kind {
	case Name:
		return s.name == other.name
	case Index:
		return s.index == other.index
	default:
		return true
	}
}

// Path is an ordered sequence of Selectors.
type Path struct {
	segments []Selector
}

// New builds a Path from selectors.
func New(segments ...Selector) Path {
	return Path{segments: append([]Selector(nil), segments...)}
}

// FromStrings builds a Path from plain field-name/index/"*" strings, the
// common case of a dotted projection string like "text.pii.kind".
func FromStrings(parts ...string) Path {
	segs := make([]Selector, len(parts))
	for i, p := range parts {
		switch {
		case p == "*":
			segs[i] = NewWildcard()
		default:
			if n, err := strconv.Atoi(p); err == nil {
				segs[i] = NewIndex(n)
			} else {
				segs[i] = NewName(p)
			}
		}
	}
	return Path{segments: segs}
}

// Selectors returns the path's segments.
func (p Path) Selectors() []Selector { return p.segments }

// Len reports the number of segments.
func (p Path) Len() int { return len(p.segments) }

// Empty reports whether the path has no segments (the row root).
func (p Path) Empty() bool { return len(p.segments) == 0 }

// Child returns a new Path with sel appended.
func (p Path) Child(sel Selector) Path {
	out := make([]Selector, len(p.segments)+1)
	copy(out, p.segments)
	out[len(p.segments)] = sel
	return Path{segments: out}
}

// Parent returns the path with its final segment removed, and false if
// the path is already empty.
func (p Path) Parent() (Path, bool) {
	if len(p.segments) == 0 {
		return Path{}, false
	}
	return Path{segments: append([]Selector(nil), p.segments[:len(p.segments)-1]...)}, true
}

// String renders the path dotted, e.g. "qs.*" or "text.pii".
func (p Path) String() string {
	parts := make([]string, len(p.segments))
	for i, s := range p.segments {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// Matches reports whether p and q have equal length and pairwise
// matching segments (wildcard matches any index-shaped segment).
func Matches(p, q Path) bool {
	if len(p.segments) != len(q.segments) {
		return false
	}
	for i := range p.segments {
		if !p.segments[i].matches(q.segments[i]) {
			return false
		}
	}
	return true
}

// Includes reports whether q is a prefix of p, segment-wise, with
// wildcard-vs-index matching honored at each compared segment.
func Includes(p, q Path) bool {
	if len(q.segments) > len(p.segments) {
		return false
	}
	for i := range q.segments {
		if !p.segments[i].matches(q.segments[i]) {
			return false
		}
	}
	return true
}
