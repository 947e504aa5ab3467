// Package sink streams consolidated records out of the pipeline.
package sink

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/logweave/logweave/pkg/iterator"
	"github.com/logweave/logweave/pkg/records"
)

// WriteCSV streams records from iter to w as CSV, emitting only the
// declared columns in declared order after a header row. Absent columns
// become empty fields so every row has a fixed width. Values containing
// the delimiter, quotes, or line breaks are escaped by the CSV encoder.
// Nothing is buffered beyond one row.
//
// The returned count is the number of bytes written. When ctx is
// cancelled mid-run WriteCSV returns the cancellation error: a cancelled
// run is a failed run, not a truncated success.
func WriteCSV(ctx context.Context, iter iterator.Iterator, columns []string, w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	out := csv.NewWriter(cw)

	if err := out.Write(columns); err != nil {
		iterator.Drain(iter)
		return cw.n, err
	}
	row := make([]string, len(columns))
	err := iter.Iterate(func(rec records.Record, _ int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, col := range columns {
			row[i] = rec.Fields[col]
		}
		if err := out.Write(row); err != nil {
			return err
		}
		// Rows reach the caller's writer as they are merged, so a live
		// consumer is never waiting on an internal buffer. Batch callers
		// wrap w in a bufio.Writer.
		out.Flush()
		return out.Error()
	})
	if err != nil {
		iterator.Drain(iter)
		return cw.n, err
	}
	out.Flush()
	if err := out.Error(); err != nil {
		return cw.n, err
	}
	if err := ctx.Err(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
