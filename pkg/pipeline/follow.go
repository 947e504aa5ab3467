package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/logweave/logweave/pkg/filter"
	"github.com/logweave/logweave/pkg/iterator"
	"github.com/logweave/logweave/pkg/merge"
	"github.com/logweave/logweave/pkg/parse"
	"github.com/logweave/logweave/pkg/profile"
	"github.com/logweave/logweave/pkg/records"
	"github.com/logweave/logweave/pkg/sink"
	"github.com/nxadm/tail"
)

// Follow tails paths live and streams consolidated CSV rows to out as
// lines arrive. Live sources have no end, so no global sort is possible;
// rows flow in arrival order with the lookahead window repairing small
// timestamp inversions across sources. Cancelling ctx is the normal way
// to stop and yields a clean return.
func Follow(ctx context.Context, log hclog.Logger, prof *profile.Profile, paths []string, out io.Writer, set Settings) (*Summary, error) {
	log = log.Named("follow")
	sum := &Summary{}
	parser := parse.New(prof)

	ch := make(chan records.Record, set.ChannelDepth)
	var wg sync.WaitGroup
	for i, path := range paths {
		t, err := tail.TailFile(path, tail.Config{
			ReOpen:    true,
			MustExist: false,
			Follow:    true,
			Logger:    tail.DiscardingLogger,
		})
		if err != nil {
			log.Warn("Skipping source file", "file", path, "error", err)
			sum.SkippedFiles.Add(1)
			continue
		}
		wg.Add(1)
		go func(t *tail.Tail, stream int) {
			defer wg.Done()
			defer func() {
				_ = t.Stop()
			}()
			followSource(ctx, t, parser, prof, stream, ch, sum)
		}(t, i)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	merged := merge.Lookahead(iterator.FromChannel(ch), set.Lookahead)
	// The channel closes once ctx is cancelled and the tails stop, so the
	// sink sees a normal end of stream rather than a failed run.
	_, err := sink.WriteCSV(context.Background(), merged, prof.OutputColumns, out)
	return sum, err
}

func followSource(ctx context.Context, t *tail.Tail, parser *parse.Parser, prof *profile.Profile, stream int, ch chan<- records.Record, sum *Summary) {
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case l, ok := <-t.Lines:
			if !ok {
				return
			}
			if l.Err != nil {
				continue
			}
			sum.LinesRead.Add(1)
			rec := parser.Parse(l.Text)
			rec.Stream = stream
			rec.Seq = seq
			seq += 1
			if rec.HasField(records.TimestampColumn) && !rec.TimeOK {
				sum.BadTimestamps.Add(1)
			}
			if !filter.Passes(rec, prof) {
				sum.FilteredOut.Add(1)
				continue
			}
			select {
			case ch <- rec:
				sum.Emitted.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}
}
