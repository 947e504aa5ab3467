package pipeline

import (
	"sync/atomic"
)

// Summary aggregates per-line and per-file conditions that degrade
// gracefully instead of failing the run. Counters are updated from many
// source workers concurrently; read them after the run completes.
type Summary struct {
	// LinesRead counts every line read from every source file.
	LinesRead atomic.Uint64
	// Emitted counts records that survived filtering and were merged.
	Emitted atomic.Uint64
	// FilteredOut counts records rejected by the profile's filters.
	FilteredOut atomic.Uint64
	// BadTimestamps counts lines whose timestamp capture no known
	// format could parse. Their ordering degrades, they are never lost.
	BadTimestamps atomic.Uint64
	// SkippedFiles counts source files that could not be read.
	SkippedFiles atomic.Uint64
}
