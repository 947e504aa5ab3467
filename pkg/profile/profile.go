// Package profile holds the validated configuration model that drives a
// consolidation run: named field matchers, output column order, filters,
// time bounds, and source file selection. A Profile is resolved once at
// load time and is immutable and safe for concurrent use afterwards.
package profile

import (
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"
	"time"

	"github.com/logweave/logweave/pkg/records"
)

// Matcher is a named, case-insensitive pattern with exactly one capture
// group. The group's match becomes the value of the column named by Name.
type Matcher struct {
	Name    string
	Pattern string

	re *regexp.Regexp
	// valueRe is the capture group's subexpression compiled on its own,
	// anchored. Every stored column value satisfies it by construction.
	valueRe *regexp.Regexp
}

func compileMatcher(name, pattern string) (*Matcher, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPattern, err)
	}
	if re.NumSubexp() != 1 {
		return nil, fmt.Errorf("%w: pattern must have exactly one capture group, has %d", ErrBadPattern, re.NumSubexp())
	}
	valueRe, err := valuePattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPattern, err)
	}
	return &Matcher{Name: name, Pattern: pattern, re: re, valueRe: valueRe}, nil
}

func valuePattern(pattern string) (*regexp.Regexp, error) {
	expr, err := syntax.Parse("(?i)"+pattern, syntax.Perl)
	if err != nil {
		return nil, err
	}
	group := findCapture(expr)
	if group == nil {
		return nil, fmt.Errorf("no capture group")
	}
	return regexp.Compile("^(?:" + group.Sub[0].String() + ")$")
}

func findCapture(re *syntax.Regexp) *syntax.Regexp {
	if re.Op == syntax.OpCapture {
		return re
	}
	for _, sub := range re.Sub {
		if found := findCapture(sub); found != nil {
			return found
		}
	}
	return nil
}

// Extract applies the matcher to line, returning the capture group value.
// A non-matching line is not an error, the column is simply absent.
func (m *Matcher) Extract(line string) (string, bool) {
	groups := m.re.FindStringSubmatch(line)
	if groups == nil {
		return "", false
	}
	return groups[1], true
}

// MatchesValue reports whether value satisfies the matcher's capture
// group on its own. Used to verify that a stored column value round-trips
// through the matcher that produced it.
func (m *Matcher) MatchesValue(value string) bool {
	return m.valueRe.MatchString(value)
}

// matchAt reports whether the matcher fires at exactly position pos in
// line, returning the end offset of the whole match when it does. The
// line parser uses this to walk the structured prelude of a line.
func (m *Matcher) matchAt(line string, pos int) (int, bool) {
	loc := m.re.FindStringIndex(line[pos:])
	if loc == nil || loc[0] != 0 {
		return 0, false
	}
	return pos + loc[1], true
}

// Profile is one fully-resolved configuration. Matchers preserve their
// declaration order for deterministic diagnostics.
type Profile struct {
	Name             string
	Matchers         []*Matcher
	OutputColumns    []string
	Filters          []*Filter
	From             *time.Time
	To               *time.Time
	SourceFiles      string
	ViewerURL        string
	MaxMessageLength int
}

// SpecialColumns are the column names every Record carries regardless of
// matcher configuration.
var SpecialColumns = []string{
	records.OriginalSourceColumn,
	records.MessageColumn,
	records.TimestampColumn,
}

// Matcher returns the named matcher, or nil if the profile does not
// declare one by that name.
func (p *Profile) Matcher(name string) *Matcher {
	for _, m := range p.Matchers {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// HasColumn reports whether name resolves to a special column or a
// declared matcher.
func (p *Profile) HasColumn(name string) bool {
	for _, s := range SpecialColumns {
		if s == name {
			return true
		}
	}
	return p.Matcher(name) != nil
}

// Extract applies every matcher to line independently, in declaration
// order. Matchers are not mutually exclusive, a line may satisfy several.
// A matcher that does not fire leaves its name out of the result.
func (p *Profile) Extract(line string) map[string]string {
	out := map[string]string{}
	for _, m := range p.Matchers {
		if v, ok := m.Extract(line); ok {
			out[m.Name] = v
		}
	}
	return out
}

// PreludeEnd walks matcher hits chained from the start of the line, where
// consecutive hits may be separated only by spaces, tabs, and pipes. It
// returns the byte offset just past the last chained hit. An offset of 0
// means no matcher fires at the start of the line.
func (p *Profile) PreludeEnd(line string) int {
	pos := 0
	for {
		next := skipSeparators(line, pos)
		advanced := false
		for _, m := range p.Matchers {
			if end, ok := m.matchAt(line, next); ok && end > next {
				pos = end
				advanced = true
				break
			}
		}
		if !advanced {
			return pos
		}
	}
}

func skipSeparators(line string, pos int) int {
	for pos < len(line) && strings.ContainsRune(" \t|", rune(line[pos])) {
		pos++
	}
	return pos
}
