// Package expand substitutes {{name}} placeholders with per-request variables.
package expand

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Vars holds the variables captured for one request (host, remote address,
// named groups of the repository domain pattern).
type Vars map[string]string

// ExpandFunc replaces every {{name}} in template with the matching variable,
// passed through escape when it is not nil (e.g. url.QueryEscape for URL
// templates). Unknown names expand to the empty string.
func (v Vars) ExpandFunc(template string, escape func(string) string) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		value := v[name]
		if escape != nil {
			value = escape(value)
		}
		return value
	})
}

// ErrUnsafeValue is returned by ExpandPath when a substituted value is not a
// single path component.
var ErrUnsafeValue = errors.New("unsafe template value")

// ExpandPath expands a path template. Every substituted value must be one
// non-empty path component: unknown names, "." and ".." and values holding a
// separator are rejected with ErrUnsafeValue.
func (v Vars) ExpandPath(template string) (string, error) {
	var bad error
	out := v.ExpandFunc(template, func(value string) string {
		if bad == nil && !isComponent(value) {
			bad = fmt.Errorf("%w: %q", ErrUnsafeValue, value)
		}
		return value
	})
	if bad != nil {
		return "", bad
	}
	return out, nil
}

// isComponent reports whether value can stand for exactly one path
// component.
func isComponent(value string) bool {
	switch value {
	case "", ".", "..":
		return false
	}
	return !strings.ContainsAny(value, "/\\\x00")
}

// Names returns the placeholder names used in template, in order of
// appearance.
func Names(template string) []string {
	matches := placeholder.FindAllStringSubmatch(template, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}
