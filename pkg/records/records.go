// Package records defines the Record type produced by parsing a log line,
// along with the ordering key used to interleave records from many sources.
package records

import (
	"time"
)

const (
	// OriginalSourceColumn holds the verbatim input line, byte-for-byte.
	OriginalSourceColumn = "OriginalSource"
	// MessageColumn holds the free-text remainder of the line after any
	// recognized prelude fields.
	MessageColumn = "Message"
	// TimestampColumn holds the raw timestamp text captured from the line.
	TimestampColumn = "Timestamp"
)

// Record is a single parsed log line with potentially many named columns.
// A column that is missing from Fields means its matcher did not fire,
// which is distinct from a column holding an empty string.
type Record struct {
	Fields map[string]string

	// When is the parsed ordering key, valid only when TimeOK is true.
	// Records without a usable key sort after all keyed records.
	When   time.Time
	TimeOK bool

	// Stream and Seq record where the line came from and its arrival
	// order within that source. They break ordering ties so that merge
	// output is stable and deterministic.
	Stream int
	Seq    uint64
}

// New returns an empty Record ready for field assignment.
func New() Record {
	return Record{Fields: map[string]string{}}
}

func (r Record) HasField(name string) bool {
	_, ok := r.Fields[name]
	return ok
}

func (r Record) Field(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

func (r Record) SetField(name, value string) {
	r.Fields[name] = value
}

// Before reports whether r sorts ahead of other in consolidated output.
// Keyed records order by instant, unkeyed records sort after every keyed
// record, and all ties fall back to registration order then arrival order.
func (r Record) Before(other Record) bool {
	switch {
	case r.TimeOK && !other.TimeOK:
		return true
	case !r.TimeOK && other.TimeOK:
		return false
	case r.TimeOK && other.TimeOK:
		if !r.When.Equal(other.When) {
			return r.When.Before(other.When)
		}
	}
	if r.Stream != other.Stream {
		return r.Stream < other.Stream
	}
	return r.Seq < other.Seq
}
