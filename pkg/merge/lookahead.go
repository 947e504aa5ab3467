package merge

import (
	"container/heap"

	"github.com/logweave/logweave/pkg/iterator"
	"github.com/logweave/logweave/pkg/records"
)

// DefaultLookahead is the inversion repair window applied when the caller
// does not choose one.
const DefaultLookahead = 64

// Lookahead wraps iter with a bounded reordering window. The next record
// emitted is always the smallest of the upcoming window records, so any
// inversion within window positions of its correct slot is repaired.
// Inversions wider than the window pass through slightly out of order,
// a deliberate trade against unbounded buffering.
//
// A window smaller than two returns iter unchanged.
func Lookahead(iter iterator.Iterator, window int) iterator.Iterator {
	if window < 2 {
		return iter
	}
	var (
		buf  = &recordHeap{}
		done bool
		next int
	)
	return iterator.Func(func() (records.Record, int, error) {
		for !done && buf.Len() < window {
			rec, _, err := iter.Next()
			if err != nil {
				if !iterator.IsEnd(err) {
					return records.Record{}, -1, err
				}
				done = true
				break
			}
			heap.Push(buf, head{rec: rec})
		}
		if buf.Len() == 0 {
			return iterator.End()
		}
		smallest := heap.Pop(buf).(head)
		cur := next
		next += 1
		return smallest.rec, cur, nil
	})
}
