package merge

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/logweave/logweave/pkg/iterator"
	"github.com/logweave/logweave/pkg/records"
)

// DefaultFanIn bounds how many streams a single merge pass holds open.
const DefaultFanIn = 16

// Options tune the consolidation merge.
type Options struct {
	// FanIn is the maximum number of streams merged in one pass. More
	// input streams than this triggers polyphase batching through spill
	// runs. Zero or less means DefaultFanIn.
	FanIn int
	// Lookahead is the per-stream inversion repair window. Zero or less
	// means DefaultLookahead.
	Lookahead int
	// SpillDir is where intermediate run files go. Empty means the
	// system temp directory.
	SpillDir string
	// Log receives per-pass debug information. Nil means no logging.
	Log hclog.Logger
}

func (o Options) withDefaults() Options {
	// A fan-in below two cannot make progress.
	if o.FanIn <= 1 {
		o.FanIn = DefaultFanIn
	}
	if o.Lookahead <= 0 {
		o.Lookahead = DefaultLookahead
	}
	if o.Log == nil {
		o.Log = hclog.NewNullLogger()
	}
	return o
}

// Consolidate merges streams into one globally ordered stream.
//
// Up to FanIn streams are merged directly. Beyond that the streams are
// partitioned into fan-in sized batches over a flat arena, each batch is
// merged into an ordered spill run on disk, and the resulting runs are
// merged again, recursively, until one pass fits. Spill passes run
// eagerly, so Consolidate may block writing runs before it returns;
// upstream producers feeding bounded channels simply block until their
// batch is reached. Spill runs are removed as they are consumed and the
// spill directory is removed when the returned stream is exhausted.
func Consolidate(opts Options, streams ...iterator.Iterator) (iterator.Iterator, error) {
	opts = opts.withDefaults()
	log := opts.Log.Named("merge")

	arena := make([]iterator.Iterator, len(streams))
	for i, s := range streams {
		arena[i] = Lookahead(s, opts.Lookahead)
	}
	if len(arena) <= opts.FanIn {
		return Merge(arena...), nil
	}

	spillDir, err := os.MkdirTemp(opts.SpillDir, "logweave-spill-*")
	if err != nil {
		return nil, fmt.Errorf("creating spill directory: %w", err)
	}
	pass := 0
	for len(arena) > opts.FanIn {
		pass += 1
		log.Debug("Polyphase pass", "pass", pass, "streams", len(arena), "fan-in", opts.FanIn)
		next := arena[:0]
		for lo := 0; lo < len(arena); lo += opts.FanIn {
			hi := lo + opts.FanIn
			if hi > len(arena) {
				hi = len(arena)
			}
			if hi-lo == 1 {
				// A lone tail stream carries over to the next pass.
				next = append(next, arena[lo])
				continue
			}
			path, err := writeRun(spillDir, Merge(arena[lo:hi]...))
			if err != nil {
				for _, s := range arena[hi:] {
					iterator.Drain(s)
				}
				_ = os.RemoveAll(spillDir)
				return nil, fmt.Errorf("writing spill run: %w", err)
			}
			next = append(next, readRun(path))
		}
		arena = next
	}
	log.Debug("Final merge pass", "streams", len(arena))
	return cleanupAfter(Merge(arena...), spillDir), nil
}

// cleanupAfter removes the spill directory once iter is exhausted or
// fails.
func cleanupAfter(iter iterator.Iterator, dir string) iterator.Iterator {
	return iterator.Func(func() (records.Record, int, error) {
		rec, i, err := iter.Next()
		if err != nil {
			_ = os.RemoveAll(dir)
		}
		return rec, i, err
	})
}
