// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

type FilterType int

const (
	FilterInclude FilterType = iota
	FilterExclude
)

func (t FilterType) String() string {
	switch t {
	case FilterInclude:
		return "include"
	case FilterExclude:
		return "exclude"
	default:
		return fmt.Sprintf("FilterType(%d)", int(t))
	}
}

// Syntax selects how the text of a Filter is interpreted.
type Syntax int

const (
	// SyntaxBasic is a POSIX basic regular expression.
	SyntaxBasic Syntax = iota
	// SyntaxExtended is a POSIX extended regular expression, as understood
	// by package regexp.
	SyntaxExtended
	// SyntaxGlob is a glob pattern matched against the whole path, with "/"
	// as separator and "**" crossing separators.
	SyntaxGlob
)

func (s Syntax) String() string {
	switch s {
	case SyntaxBasic:
		return "basic"
	case SyntaxExtended:
		return "extended"
	case SyntaxGlob:
		return "glob"
	default:
		return fmt.Sprintf("Syntax(%d)", int(s))
	}
}

// A Filter decides whether paths matching Text are accepted (FilterInclude)
// or rejected (FilterExclude).
type Filter struct {
	Text          string
	Type          FilterType
	CaseSensitive bool
	Syntax        Syntax
}

func (f Filter) String() string {
	ret := f.Text
	if f.Type == FilterExclude {
		ret = "!" + ret
	}
	if !f.CaseSensitive {
		ret = "(?i)" + ret
	}
	return ret
}

type compiledFilter struct {
	filter Filter
	match  func(path string) bool
}

func compileFilter(f Filter) (compiledFilter, error) {
	if f.Type != FilterInclude && f.Type != FilterExclude {
		return compiledFilter{}, fmt.Errorf("%w: %q: unknown type %v", ErrInvalidFilter, f.Text, f.Type)
	}

	switch f.Syntax {
	case SyntaxGlob:
		pattern := f.Text
		if !f.CaseSensitive {
			pattern = strings.ToLower(pattern)
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return compiledFilter{}, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, f.Text, err)
		}
		if f.CaseSensitive {
			return compiledFilter{filter: f, match: g.Match}, nil
		}
		return compiledFilter{filter: f, match: func(path string) bool {
			return g.Match(strings.ToLower(path))
		}}, nil

	case SyntaxBasic, SyntaxExtended:
		pattern := f.Text
		if f.Syntax == SyntaxBasic {
			pattern = convertBasic(pattern)
		}
		if !f.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return compiledFilter{}, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, f.Text, err)
		}
		return compiledFilter{filter: f, match: re.MatchString}, nil

	default:
		return compiledFilter{}, fmt.Errorf("%w: %q: unknown syntax %v", ErrInvalidFilter, f.Text, f.Syntax)
	}
}

// convertBasic rewrites a POSIX basic regular expression into the syntax of
// package regexp. In a basic expression the characters (){}|+? are literals
// unless escaped, the reverse of the extended syntax, and a leading * is a
// literal. The GNU escapes \< \> \` and \' become their closest RE2
// assertions, and backslashes in bracket expressions are literal.
func convertBasic(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 8)

	atStart := true
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			i++
			n := pattern[i]
			switch n {
			case '(', ')', '{', '}', '|', '+', '?':
				b.WriteByte(n)
				atStart = n == '(' || n == '|'
				continue
			case '<', '>':
				// GNU word start and end; RE2 only knows boundaries.
				b.WriteString(`\b`)
			case '`':
				b.WriteString(`\A`)
			case '\'':
				b.WriteString(`\z`)
			default:
				b.WriteByte('\\')
				b.WriteByte(n)
			}

		case c == '(' || c == ')' || c == '{' || c == '}' || c == '|' || c == '+' || c == '?':
			b.WriteByte('\\')
			b.WriteByte(c)

		case c == '*' && atStart:
			b.WriteString(`\*`)

		case c == '^' && atStart:
			b.WriteByte(c)
			continue

		case c == '[':
			// A backslash is literal inside a POSIX bracket expression.
			end := bracketEnd(pattern, i)
			b.WriteString(strings.ReplaceAll(pattern[i:end+1], `\`, `\\`))
			i = end

		default:
			b.WriteByte(c)
		}
		atStart = false
	}
	return b.String()
}

// bracketEnd returns the index of the ] closing the bracket expression
// opened at start, or the last index of the pattern if it is unterminated.
func bracketEnd(pattern string, start int) int {
	i := start + 1
	if i < len(pattern) && pattern[i] == '^' {
		i++
	}
	if i < len(pattern) && pattern[i] == ']' {
		i++
	}
	for ; i < len(pattern); i++ {
		switch {
		case pattern[i] == '[' && i+1 < len(pattern) && (pattern[i+1] == ':' || pattern[i+1] == '.' || pattern[i+1] == '='):
			if end := strings.Index(pattern[i+2:], string(pattern[i+1])+"]"); end >= 0 {
				i += end + 3
			}
		case pattern[i] == ']':
			return i
		}
	}
	return len(pattern) - 1
}
