// Package merge interleaves many per-source record streams into one
// globally ordered stream with bounded working memory.
//
// Each input stream is assumed to be approximately ordered by timestamp:
// file order usually tracks clock order, but clock skew and out-of-order
// writes produce local inversions. A per-stream lookahead window repairs
// inversions up to a configurable distance; anything larger is emitted
// best-effort rather than buffered without bound. When more streams are
// supplied than the configured fan-in allows open at once, streams are
// merged in batches to intermediate runs on disk and the runs merged
// again, so open handles and memory stay constant regardless of input
// count.
package merge

import (
	"container/heap"

	"github.com/logweave/logweave/pkg/iterator"
	"github.com/logweave/logweave/pkg/records"
)

// head is one stream's current front record inside the merge heap.
type head struct {
	rec records.Record
	src int
}

// recordHeap is a min-heap of stream heads ordered by Record.Before.
// Record ordering is total (instant, then stream registration, then
// arrival), so heap order is deterministic. A stream whose records carry
// no usable ordering key degrades to arrival order automatically: unkeyed
// records sort after keyed ones and tie-break by arrival.
type recordHeap []head

func (h recordHeap) Len() int { return len(h) }

func (h recordHeap) Less(i, j int) bool {
	return h[i].rec.Before(h[j].rec)
}

func (h recordHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *recordHeap) Push(x any) {
	*h = append(*h, x.(head))
}

func (h *recordHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merge combines streams into one ordered stream using a k-way heap
// merge. Every stream must already be ordered by Record.Before (apply
// Lookahead first when a stream may carry local inversions). Streams are
// consumed forward-only, exactly once, and the output length equals the
// sum of the input lengths.
func Merge(streams ...iterator.Iterator) iterator.Iterator {
	var (
		heads  = &recordHeap{}
		primed bool
		next   int
	)
	prime := func() error {
		for src, s := range streams {
			rec, _, err := s.Next()
			if err != nil {
				if iterator.IsEnd(err) {
					continue
				}
				return err
			}
			heap.Push(heads, head{rec: rec, src: src})
		}
		return nil
	}
	return iterator.Func(func() (records.Record, int, error) {
		if !primed {
			primed = true
			if err := prime(); err != nil {
				return records.Record{}, -1, err
			}
		}
		if heads.Len() == 0 {
			return iterator.End()
		}
		smallest := heap.Pop(heads).(head)
		rec, _, err := streams[smallest.src].Next()
		switch {
		case err == nil:
			heap.Push(heads, head{rec: rec, src: smallest.src})
		case !iterator.IsEnd(err):
			return records.Record{}, -1, err
		}
		cur := next
		next += 1
		return smallest.rec, cur, nil
	})
}
