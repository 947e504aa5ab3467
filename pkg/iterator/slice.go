package iterator

import (
	"github.com/logweave/logweave/pkg/records"
)

var _ Iterator = (*recordSlice)(nil)

type recordSlice struct {
	recs []records.Record
	next int
}

func (s *recordSlice) Next() (records.Record, int, error) {
	cur := s.next
	if len(s.recs) > cur {
		s.next += 1
		return s.recs[cur], cur, nil
	}
	return End()
}

func (s *recordSlice) Iterate(iter func(rec records.Record, i int) error) error {
	return iterate(s, iter)
}
