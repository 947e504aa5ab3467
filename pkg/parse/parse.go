// Package parse turns raw log lines into Records using a profile's
// compiled matchers.
package parse

import (
	"strings"

	"github.com/logweave/logweave/pkg/profile"
	"github.com/logweave/logweave/pkg/records"
)

// Parser applies one profile's matchers to lines from a single source.
// It is stateless apart from the shared read-only profile, so parsers for
// different sources may run concurrently.
type Parser struct {
	prof *profile.Profile
}

func New(prof *profile.Profile) *Parser {
	return &Parser{prof: prof}
}

// Parse assembles a Record from one line.
//
// OriginalSource always holds the line verbatim. Message holds the
// remainder of the line after the structured prelude, or the whole line
// when no matcher fires at the start, and is never empty for a non-empty
// line. When the Timestamp matcher fires, its raw capture stays in the
// Timestamp column and the parsed instant becomes the ordering key; a
// capture no known format can parse keeps the raw string with an unknown
// key, it is never an error.
func (p *Parser) Parse(line string) records.Record {
	rec := records.New()
	rec.SetField(records.OriginalSourceColumn, line)

	for name, value := range p.prof.Extract(line) {
		rec.SetField(name, scrub(value))
	}

	msg := strings.TrimLeft(line[p.prof.PreludeEnd(line):], " \t|")
	if msg == "" {
		msg = line
	}
	rec.SetField(records.MessageColumn, truncate(scrub(msg), p.prof.MaxMessageLength))

	if raw, ok := rec.Field(records.TimestampColumn); ok {
		rec.When, rec.TimeOK = records.ParseTime(raw)
	}
	return rec
}

// HasTimestamp reports whether rec carries a Timestamp column at all,
// parsed or not. Sources where no line ever produces one fall back to
// arrival order during the merge.
func HasTimestamp(rec records.Record) bool {
	return rec.HasField(records.TimestampColumn)
}

// scrub replaces CR and LF with spaces so extracted values are safe in a
// single CSV field.
func scrub(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, s)
}

// truncate caps s at max runes. A max of zero or less means no cap.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
