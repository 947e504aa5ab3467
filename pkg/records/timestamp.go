package records

import (
	"time"
)

// timeFormats are tried in order when parsing a captured timestamp value.
// The first entry matches the pipe-delimited logging framework this tool
// was originally built around ("2018-01-23 09:12:32.9869213"), the rest
// cover the common ISO-8601 variants seen across other sources.
var timeFormats = []string{
	"2006-01-02 15:04:05.9999999",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses a captured timestamp string into a comparable ordering
// key. The boolean result is false when no known format matches; callers
// keep the raw string and treat the key as unknown, never as an error.
func ParseTime(s string) (time.Time, bool) {
	for _, f := range timeFormats {
		t, err := time.Parse(f, s)
		if err == nil {
			return t.UTC(), true
		}
	}
	var none time.Time
	return none, false
}
