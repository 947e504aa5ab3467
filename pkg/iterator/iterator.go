// Package iterator provides the record stream abstraction shared by every
// stage of the consolidation pipeline. A stream is finite, forward-only,
// and consumed exactly once.
package iterator

import (
	"context"
	"errors"
	"sync"

	"github.com/logweave/logweave/pkg/records"
)

var (
	ErrStopIteration = errors.New("stop iterating")
)

type Iterator interface {
	// Next returns the next Record and its offset in the stream.
	// Returns ErrStopIteration when the end of the stream is reached.
	Next() (records.Record, int, error)
	// Iterate progresses through all records in the stream, calling iter
	// for each one along with its offset.
	// If iter returns ErrStopIteration, iteration ceases returning nil.
	// Any other error ceases iteration and is returned.
	Iterate(iter func(rec records.Record, i int) error) error
}

// NextFunc is the signature of Next, allowing plain functions to act as
// iterators through Func.
type NextFunc func() (records.Record, int, error)

// Func adapts fn into an Iterator.
func Func(fn NextFunc) Iterator {
	return &funcIterator{fn: fn}
}

// End returns the values a Next implementation should produce at the end
// of its stream.
func End() (records.Record, int, error) {
	return records.Record{}, -1, ErrStopIteration
}

// IsEnd reports whether err indicates normal end of stream.
func IsEnd(err error) bool {
	return errors.Is(err, ErrStopIteration)
}

type funcIterator struct {
	fn NextFunc
}

func (f *funcIterator) Next() (records.Record, int, error) {
	return f.fn()
}

func (f *funcIterator) Iterate(iter func(rec records.Record, i int) error) error {
	return iterate(f, iter)
}

func iterate(src Iterator, iter func(rec records.Record, i int) error) error {
	for {
		rec, i, err := src.Next()
		if err != nil {
			if IsEnd(err) {
				return nil
			}
			return err
		}
		if err := iter(rec, i); err != nil {
			if IsEnd(err) {
				return nil
			}
			return err
		}
	}
}

// FromSlice returns an Iterator over recs.
func FromSlice(recs []records.Record) Iterator {
	return &recordSlice{recs: recs}
}

// FromChannel returns an Iterator that yields records received on ch until
// it is closed.
func FromChannel(ch <-chan records.Record) Iterator {
	return &recordChannel{ch: ch}
}

// AsChannel exposes iter as a channel, draining it in a new goroutine
// unless it is already channel- or slice-backed.
func AsChannel(iter Iterator) <-chan records.Record {
	if chi, ok := iter.(*recordChannel); ok {
		return chi.ch
	}
	if sli, ok := iter.(*recordSlice); ok {
		ch := make(chan records.Record, len(sli.recs))
		defer close(ch)
		for i := sli.next; i < len(sli.recs); i++ {
			ch <- sli.recs[i]
		}
		return ch
	}
	ch := make(chan records.Record)
	go func() {
		defer close(ch)
		_ = iter.Iterate(func(rec records.Record, i int) error {
			ch <- rec
			return nil
		})
	}()
	return ch
}

// Drain consumes all remaining records from iter in a new goroutine.
// Useful as an error fallback to prevent upstream producers blocking.
func Drain(iter Iterator) {
	ch := AsChannel(iter)
	go func() {
		for range ch {
		}
	}()
}

// Cancellable wraps iter so that it terminates early once ctx is done.
// After cancellation the remaining records are forwarded to Drain.
func Cancellable(ctx context.Context, iter Iterator) Iterator {
	var drain sync.Once
	return Func(func() (records.Record, int, error) {
		select {
		case <-ctx.Done():
			drain.Do(func() {
				Drain(iter)
			})
			return End()
		default:
			return iter.Next()
		}
	})
}
