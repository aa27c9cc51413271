// Package vpath implements the immutable path value used to address nodes
// across every storage adapter.
//
// A Path is an ordered list of components. An empty first component marks a
// rooted (absolute) path, so "/foo/bar" is ["", "foo", "bar"] while "foo/bar"
// is ["foo", "bar"]. All comparisons are component-wise: "/foobar" never
// matches the prefix "/foo".
//
// A Path may remember the path it was derived from (its base). The base only
// feeds Absolute(); it never takes part in equality, ordering or prefix tests.
package vpath

import (
	"strings"
)

// Separator is the component separator used when parsing and rendering.
const Separator = "/"

// Path is an immutable component path. The zero value is the empty relative
// path.
type Path struct {
	components []string
	base       *Path
}

// New parses s into a Path.
//
// Trailing separators are dropped and repeated separators collapse into one,
// so New("/foo/bar//") equals New("/foo/bar"). A string made only of
// separators is the root path.
func New(s string) Path {
	if s == "" {
		return Path{}
	}

	trimmed := strings.TrimRight(s, Separator)
	if trimmed == "" {
		return Root()
	}

	parts := strings.Split(trimmed, Separator)
	components := make([]string, 0, len(parts))
	for i, part := range parts {
		if part == "" && i > 0 {
			continue
		}
		components = append(components, part)
	}

	return Path{components: components}
}

// FromComponents builds a Path from an explicit component list. The slice is
// copied.
func FromComponents(components ...string) Path {
	return Path{components: cloneComponents(components)}
}

// Root returns the rooted empty path, rendered as "/".
func Root() Path {
	return Path{components: []string{""}}
}

// Components returns a copy of the path components.
func (p Path) Components() []string {
	return cloneComponents(p.components)
}

// Length returns the number of components, counting the root marker.
func (p Path) Length() int {
	return len(p.components)
}

// IsEmpty reports whether the path has no components.
func (p Path) IsEmpty() bool {
	return len(p.components) == 0
}

// First returns the first component, or "" for an empty path. For rooted
// paths this is the root marker "".
func (p Path) First() string {
	if len(p.components) == 0 {
		return ""
	}
	return p.components[0]
}

// Last returns the final component, or "" for an empty path.
func (p Path) Last() string {
	if len(p.components) == 0 {
		return ""
	}
	return p.components[len(p.components)-1]
}

// IsAbsolute reports whether the path starts with the root marker.
func (p Path) IsAbsolute() bool {
	return len(p.components) > 0 && p.components[0] == ""
}

// IsRoot reports whether the path is exactly the root.
func (p Path) IsRoot() bool {
	return len(p.components) == 1 && p.components[0] == ""
}

// Base returns the path this one was derived from, if any.
func (p Path) Base() (Path, bool) {
	if p.base == nil {
		return Path{}, false
	}
	return *p.base, true
}

// Join returns a new path made of the receiver's components followed by
// other's. A root marker at the start of other is dropped, so joining an
// absolute path appends its components. The receiver's base is kept.
func (p Path) Join(other Path) Path {
	tail := other.components
	if len(p.components) > 0 && len(tail) > 0 && tail[0] == "" {
		tail = tail[1:]
	}

	components := make([]string, 0, len(p.components)+len(tail))
	components = append(components, p.components...)
	components = append(components, tail...)

	return Path{components: components, base: p.base}
}

// Child returns the path extended by a single component.
func (p Path) Child(name string) Path {
	return p.Join(Path{components: []string{name}})
}

// Descend drops the first component. It returns false when one component or
// fewer remain, since there is nothing left to descend into.
func (p Path) Descend() (Path, bool) {
	if len(p.components) <= 1 {
		return Path{}, false
	}

	return Path{
		components: cloneComponents(p.components[1:]),
		base:       p.rebase(Path{components: p.components[:1]}),
	}, true
}

// HasPrefix reports whether prefix's components match the first components of
// the receiver one for one.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.components) > len(p.components) {
		return false
	}
	for i, c := range prefix.components {
		if p.components[i] != c {
			return false
		}
	}
	return true
}

// WithoutPrefix strips a structural prefix. The result is based on prefix so
// Absolute() can rebuild the original location.
func (p Path) WithoutPrefix(prefix Path) (Path, bool) {
	if !p.HasPrefix(prefix) {
		return Path{}, false
	}

	return Path{
		components: cloneComponents(p.components[len(prefix.components):]),
		base:       p.rebase(prefix),
	}, true
}

// ImmediateChild reports whether other sits exactly one level below the
// receiver.
func (p Path) ImmediateChild(other Path) bool {
	return len(other.components) == len(p.components)+1 && other.HasPrefix(p)
}

// Parent returns the path without its last component. The root and the empty
// path have no parent.
func (p Path) Parent() (Path, bool) {
	if len(p.components) == 0 || p.IsRoot() {
		return Path{}, false
	}

	return Path{
		components: cloneComponents(p.components[:len(p.components)-1]),
		base:       p.base,
	}, true
}

// Absolute rebuilds the full path by joining the chain of bases. A path
// without a base is returned as is.
func (p Path) Absolute() Path {
	if p.base == nil {
		return Path{components: p.components}
	}

	abs := p.base.Absolute().Join(Path{components: p.components})
	abs.base = nil
	return abs
}

// Clean resolves "." and ".." components lexically. A rooted path never
// climbs above the root; leading ".." of a relative path are kept so callers
// can detect the escape.
func (p Path) Clean() Path {
	out := make([]string, 0, len(p.components))
	for i, c := range p.components {
		switch c {
		case "", ".":
			if c == "" && i == 0 {
				out = append(out, "")
			}
		case "..":
			switch {
			case len(out) == 1 && out[0] == "":
				// already at the root
			case len(out) > 0 && out[len(out)-1] != "..":
				out = out[:len(out)-1]
			default:
				out = append(out, "..")
			}
		default:
			out = append(out, c)
		}
	}

	return Path{components: out, base: p.base}
}

// Equal compares components only.
func (p Path) Equal(other Path) bool {
	return p.Compare(other) == 0
}

// Compare orders paths component by component; a strict prefix sorts first.
func (p Path) Compare(other Path) int {
	n := min(len(p.components), len(other.components))
	for i := 0; i < n; i++ {
		if c := strings.Compare(p.components[i], other.components[i]); c != 0 {
			return c
		}
	}

	switch {
	case len(p.components) < len(other.components):
		return -1
	case len(p.components) > len(other.components):
		return 1
	default:
		return 0
	}
}

// String renders the path with Separator. The root renders as "/".
func (p Path) String() string {
	if p.IsRoot() {
		return Separator
	}
	return strings.Join(p.components, Separator)
}

// rebase computes the base of a path derived from p by consuming consumed.
func (p Path) rebase(consumed Path) *Path {
	b := Path{components: cloneComponents(consumed.components)}
	if p.base != nil {
		b = p.base.Absolute().Join(consumed)
		b.base = nil
	}
	return &b
}

func cloneComponents(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
