// Package filter evaluates a profile's filter predicates against Records.
// Evaluation is pure and stateless, records from different sources may be
// filtered concurrently against the same shared profile.
package filter

import (
	"github.com/logweave/logweave/pkg/profile"
	"github.com/logweave/logweave/pkg/records"
)

// Passes reports whether rec satisfies every filter in the profile along
// with its From/To date bounds. Filters are a conjunction: all must hold.
// A filter referencing an absent field fails closed, as does a date bound
// applied to a record whose timestamp could not be parsed.
func Passes(rec records.Record, prof *profile.Profile) bool {
	for _, f := range prof.Filters {
		v, present := rec.Field(f.Field)
		if !f.Matches(v, present) {
			return false
		}
	}
	if prof.From != nil || prof.To != nil {
		if !rec.TimeOK {
			return false
		}
		if prof.From != nil && rec.When.Before(*prof.From) {
			return false
		}
		if prof.To != nil && rec.When.After(*prof.To) {
			return false
		}
	}
	return true
}
