package iterator

import (
	"github.com/logweave/logweave/pkg/records"
)

var _ Iterator = (*recordChannel)(nil)

type recordChannel struct {
	ch   <-chan records.Record
	next int
}

func (c *recordChannel) Next() (records.Record, int, error) {
	rec, ok := <-c.ch
	if !ok {
		return End()
	}
	cur := c.next
	c.next += 1
	return rec, cur, nil
}

func (c *recordChannel) Iterate(iter func(rec records.Record, i int) error) error {
	return iterate(c, iter)
}
