// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package route compiles path patterns into matchers.
//
// A pattern is literal text mixed with two kinds of placeholders:
//
//	/items/{id}     binds id to a single path segment
//	/files/*        binds subpath to the rest of the path, leading slash included
//
// The trailing wildcard may only appear as the final two characters.
package route

import (
	"fmt"
	"regexp"
	"strings"
)

// SubpathParam is the parameter name bound by a trailing wildcard.
const SubpathParam = "subpath"

// Params holds the parameters bound by a successful match.
type Params map[string]string

// InvalidPatternError is returned when a pattern can not be compiled.
type InvalidPatternError struct {
	Pattern string
	Reason  string
}

// Error implements the [builtin.error] interface.
func (e InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid route pattern %q: %s", e.Pattern, e.Reason)
}

// Matcher matches request paths against a compiled pattern.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
	names   []string
}

// Compile parses the pattern and returns a [Matcher] for it.
func Compile(pattern string) (*Matcher, error) {
	invalid := func(reason string) error {
		return InvalidPatternError{Pattern: pattern, Reason: reason}
	}

	if pattern == "" {
		return nil, invalid("pattern is empty")
	}
	if pattern[0] != '/' {
		return nil, invalid("pattern must start with /")
	}

	body := pattern
	wildcard := strings.HasSuffix(pattern, "/*")
	if wildcard {
		body = strings.TrimSuffix(pattern, "/*")
	}
	if pattern != "/" && !wildcard && strings.HasSuffix(pattern, "/") {
		return nil, invalid("pattern must not end with /")
	}

	var sb strings.Builder
	sb.WriteString("^")

	seen := make(map[string]bool)
	var names []string
	for len(body) > 0 {
		open := strings.IndexAny(body, "{}*")
		if open == -1 {
			sb.WriteString(regexp.QuoteMeta(body))
			break
		}
		sb.WriteString(regexp.QuoteMeta(body[:open]))

		switch body[open] {
		case '}':
			return nil, invalid("unexpected }")
		case '*':
			return nil, invalid("* is only allowed as a trailing /*")
		}

		end := strings.IndexByte(body[open:], '}')
		if end == -1 {
			return nil, invalid("unterminated {")
		}
		name := body[open+1 : open+end]
		if !isWord(name) {
			return nil, invalid(fmt.Sprintf("invalid parameter name %q", name))
		}
		if seen[name] {
			return nil, invalid(fmt.Sprintf("duplicate parameter name %q", name))
		}
		seen[name] = true
		names = append(names, name)

		fmt.Fprintf(&sb, "(?P<%s>[^/]+)", name)
		body = body[open+end+1:]
	}

	if wildcard {
		if seen[SubpathParam] {
			return nil, invalid(fmt.Sprintf("duplicate parameter name %q", SubpathParam))
		}
		names = append(names, SubpathParam)
		fmt.Fprintf(&sb, "(?P<%s>/.*)", SubpathParam)
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, invalid(err.Error())
	}

	m := &Matcher{
		pattern: pattern,
		re:      re,
		names:   names,
	}
	return m, nil
}

// MustCompile is like [Compile] but panics if the pattern is invalid.
func MustCompile(pattern string) *Matcher {
	m, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}

// Match reports whether the whole path matches and returns the bound parameters.
func (m *Matcher) Match(path string) (Params, bool) {
	groups := m.re.FindStringSubmatch(path)
	if groups == nil {
		return nil, false
	}

	params := make(Params, len(m.names))
	for i, name := range m.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		params[name] = groups[i]
	}
	return params, true
}

// Pattern returns the pattern the [Matcher] was compiled from.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Names returns the parameter names bound by the pattern in order.
func (m *Matcher) Names() []string {
	names := make([]string, len(m.names))
	copy(names, m.names)
	return names
}

// String implements the [fmt.Stringer] interface.
func (m *Matcher) String() string {
	return fmt.Sprintf("Route(%s)", m.pattern)
}
