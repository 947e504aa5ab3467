package profile

import (
	"fmt"
	"regexp"
	"strings"
)

// FilterKind discriminates the supported filter predicates.
type FilterKind int

const (
	// FieldMatches requires the field value to match the pattern.
	FieldMatches FilterKind = iota
	// FieldDoesNotMatch requires the field value to not match the pattern.
	FieldDoesNotMatch
	// FieldNonBlank requires the field to be present and non-empty.
	FieldNonBlank
)

// Filter is one predicate over a named record field. A filter referencing
// an absent field evaluates false, it fails closed.
type Filter struct {
	Kind    FilterKind
	Field   string
	Pattern string

	re *regexp.Regexp
}

// Matches evaluates the predicate against a field value. The present flag
// distinguishes an absent column from an empty one.
func (f *Filter) Matches(value string, present bool) bool {
	if !present {
		return false
	}
	switch f.Kind {
	case FieldMatches:
		return f.re.MatchString(value)
	case FieldDoesNotMatch:
		return !f.re.MatchString(value)
	case FieldNonBlank:
		return strings.TrimSpace(value) != ""
	}
	return false
}

// ParseFilter parses one filter expression. The supported forms are:
//
//	FIELD =~ PATTERN    the field value must match PATTERN
//	FIELD !~ PATTERN    the field value must not match PATTERN
//	FIELD nonblank      the field must be present and non-empty
//
// Patterns are compiled verbatim, unlike matcher patterns they are not
// forced case-insensitive.
func ParseFilter(expr string) (*Filter, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrBadFilter)
	}
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrBadFilter, expr)
	}
	field := parts[0]
	rest := strings.TrimSpace(parts[1])

	if strings.EqualFold(rest, "nonblank") {
		return &Filter{Kind: FieldNonBlank, Field: field}, nil
	}

	var kind FilterKind
	switch {
	case strings.HasPrefix(rest, "=~"):
		kind = FieldMatches
	case strings.HasPrefix(rest, "!~"):
		kind = FieldDoesNotMatch
	default:
		return nil, fmt.Errorf("%w: unrecognized operator in %q", ErrBadFilter, expr)
	}
	pattern := strings.TrimSpace(rest[2:])
	if pattern == "" {
		return nil, fmt.Errorf("%w: missing pattern in %q", ErrBadFilter, expr)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFilter, err)
	}
	return &Filter{Kind: kind, Field: field, Pattern: pattern, re: re}, nil
}
