// Package pipeline wires the parsing, filtering, merging, and output
// stages into a complete consolidation run. One worker per source file
// runs the line parser and filter engine independently, feeding bounded
// channels; the merge engine is the single consumer that observes
// cross-stream ordering.
package pipeline

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/logweave/logweave/pkg/filter"
	"github.com/logweave/logweave/pkg/iterator"
	"github.com/logweave/logweave/pkg/merge"
	"github.com/logweave/logweave/pkg/parse"
	"github.com/logweave/logweave/pkg/profile"
	"github.com/logweave/logweave/pkg/records"
	"github.com/logweave/logweave/pkg/sink"
	"golang.org/x/sync/errgroup"
)

// maxLineSize bounds a single source line. Lines are log entries, not
// payload dumps; anything larger ends the file early with a warning.
const maxLineSize = 16 * 1024 * 1024

// ResolveFiles expands a profile's SourceFiles glob into a deduplicated,
// sorted list of paths. Sorting keeps stream registration order, and with
// it merge tie-breaking, deterministic across runs.
func ResolveFiles(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var paths []string
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Run consolidates paths into CSV on out and reports diagnostics plus the
// byte count written. The only hard failures are sink I/O errors and
// cancellation; unreadable files and unparsable lines degrade into the
// Summary.
func Run(ctx context.Context, log hclog.Logger, prof *profile.Profile, paths []string, out io.Writer, set Settings) (*Summary, int64, error) {
	merged, sum, wait, err := Consolidated(ctx, log, prof, paths, set)
	if err != nil {
		return sum, 0, err
	}
	bw := bufio.NewWriterSize(out, 64*1024)
	n, err := sink.WriteCSV(ctx, merged, prof.OutputColumns, bw)
	if ferr := bw.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	if werr := wait(); werr != nil && err == nil {
		err = werr
	}
	return sum, n, err
}

// Consolidated starts one worker per source file and returns the globally
// ordered record stream along with the live Summary and a wait function
// that must be called after the stream is fully consumed.
func Consolidated(ctx context.Context, log hclog.Logger, prof *profile.Profile, paths []string, set Settings) (iterator.Iterator, *Summary, func() error, error) {
	log = log.Named("pipeline")
	sum := &Summary{}
	parser := parse.New(prof)

	eg, ctx := errgroup.WithContext(ctx)
	streams := make([]iterator.Iterator, len(paths))
	for i, path := range paths {
		i, path := i, path
		ch := make(chan records.Record, set.ChannelDepth)
		streams[i] = iterator.FromChannel(ch)
		eg.Go(func() error {
			defer close(ch)
			return readSource(ctx, log, parser, prof, path, i, ch, sum)
		})
	}

	merged, err := merge.Consolidate(merge.Options{
		FanIn:     set.FanIn,
		Lookahead: set.Lookahead,
		SpillDir:  set.SpillDir,
		Log:       log,
	}, streams...)
	if err != nil {
		for _, s := range streams {
			iterator.Drain(s)
		}
		_ = eg.Wait()
		return nil, sum, nil, err
	}
	return merged, sum, eg.Wait, nil
}

// readSource streams one file through the line parser and filter engine
// into ch. A file that cannot be opened or read is skipped with a
// warning; only cancellation is returned as an error.
func readSource(ctx context.Context, log hclog.Logger, parser *parse.Parser, prof *profile.Profile, path string, stream int, ch chan<- records.Record, sum *Summary) error {
	log = log.With("file", path)
	f, err := os.Open(path)
	if err != nil {
		log.Warn("Skipping unreadable source file", "error", err)
		sum.SkippedFiles.Add(1)
		return nil
	}
	defer func() {
		_ = f.Close()
	}()

	var (
		seq   uint64
		bytes int64
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		sum.LinesRead.Add(1)
		bytes += int64(len(sc.Bytes())) + 1
		rec := parser.Parse(sc.Text())
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
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn("Stopped reading source file early", "error", err, "lines", seq)
		sum.SkippedFiles.Add(1)
		return nil
	}
	log.Info("Source file complete", "lines", seq, "bytes", bytes)
	return nil
}
