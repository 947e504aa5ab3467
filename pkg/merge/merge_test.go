package merge

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/logweave/logweave/pkg/iterator"
	"github.com/logweave/logweave/pkg/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyed(t *testing.T, ts string, stream int, seq uint64) records.Record {
	t.Helper()
	rec := records.New()
	rec.SetField(records.TimestampColumn, ts)
	rec.SetField(records.MessageColumn, fmt.Sprintf("s%d-%d", stream, seq))
	var ok bool
	rec.When, ok = records.ParseTime(ts)
	require.True(t, ok)
	rec.TimeOK = true
	rec.Stream = stream
	rec.Seq = seq
	return rec
}

func unkeyed(stream int, seq uint64) records.Record {
	rec := records.New()
	rec.SetField(records.MessageColumn, fmt.Sprintf("s%d-%d", stream, seq))
	rec.Stream = stream
	rec.Seq = seq
	return rec
}

func collect(t *testing.T, iter iterator.Iterator) []records.Record {
	t.Helper()
	var out []records.Record
	err := iter.Iterate(func(rec records.Record, _ int) error {
		out = append(out, rec)
		return nil
	})
	require.NoError(t, err)
	return out
}

func assertNonDecreasing(t *testing.T, recs []records.Record) {
	t.Helper()
	for i := 1; i < len(recs); i++ {
		assert.False(t, recs[i].Before(recs[i-1]),
			"record %d sorts before its predecessor", i)
	}
}

func TestMerge_OrdersAcrossStreams(t *testing.T) {
	a := iterator.FromSlice([]records.Record{
		keyed(t, "2024-01-01T00:00:01Z", 0, 0),
		keyed(t, "2024-01-01T00:00:04Z", 0, 1),
		keyed(t, "2024-01-01T00:00:07Z", 0, 2),
	})
	b := iterator.FromSlice([]records.Record{
		keyed(t, "2024-01-01T00:00:02Z", 1, 0),
		keyed(t, "2024-01-01T00:00:03Z", 1, 1),
		keyed(t, "2024-01-01T00:00:08Z", 1, 2),
	})
	got := collect(t, Merge(a, b))
	require.Len(t, got, 6, "output length equals the sum of input lengths")
	assertNonDecreasing(t, got)
	assert.Equal(t, "s0-0", got[0].Fields[records.MessageColumn])
	assert.Equal(t, "s1-0", got[1].Fields[records.MessageColumn])
	assert.Equal(t, "s1-1", got[2].Fields[records.MessageColumn])
}

func TestMerge_TieBreakIsRegistrationOrder(t *testing.T) {
	ts := "2024-01-01T00:00:00Z"
	a := iterator.FromSlice([]records.Record{keyed(t, ts, 1, 0)})
	b := iterator.FromSlice([]records.Record{keyed(t, ts, 0, 0)})
	// Stream indexes were assigned at registration, regardless of the
	// argument order the merge sees.
	got := collect(t, Merge(a, b))
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Stream)
	assert.Equal(t, 1, got[1].Stream)
}

func TestMerge_NoStreams(t *testing.T) {
	_, i, err := Merge().Next()
	assert.ErrorIs(t, err, iterator.ErrStopIteration)
	assert.Equal(t, -1, i)
}

func TestMerge_KeylessStreamFallsBackToArrivalOrder(t *testing.T) {
	a := iterator.FromSlice([]records.Record{
		keyed(t, "2024-01-01T00:00:01Z", 0, 0),
		keyed(t, "2024-01-01T00:00:02Z", 0, 1),
	})
	b := iterator.FromSlice([]records.Record{
		unkeyed(1, 0),
		unkeyed(1, 1),
		unkeyed(1, 2),
	})
	got := collect(t, Merge(a, b))
	require.Len(t, got, 5)
	// Keyed records come first, then the keyless stream in arrival order.
	assert.True(t, got[0].TimeOK)
	assert.True(t, got[1].TimeOK)
	for i, rec := range got[2:] {
		assert.False(t, rec.TimeOK)
		assert.Equal(t, uint64(i), rec.Seq)
	}
}

func TestLookahead_RepairsLocalInversion(t *testing.T) {
	src := iterator.FromSlice([]records.Record{
		keyed(t, "2024-01-01T00:00:02Z", 0, 0),
		keyed(t, "2024-01-01T00:00:01Z", 0, 1), // one slot late
		keyed(t, "2024-01-01T00:00:03Z", 0, 2),
	})
	got := collect(t, Lookahead(src, 4))
	require.Len(t, got, 3)
	assertNonDecreasing(t, got)
}

func TestLookahead_WindowBoundsRepair(t *testing.T) {
	// The late record is 3 slots out of place, but the window only spans 2.
	src := iterator.FromSlice([]records.Record{
		keyed(t, "2024-01-01T00:00:05Z", 0, 0),
		keyed(t, "2024-01-01T00:00:06Z", 0, 1),
		keyed(t, "2024-01-01T00:00:07Z", 0, 2),
		keyed(t, "2024-01-01T00:00:01Z", 0, 3),
	})
	got := collect(t, Lookahead(src, 2))
	require.Len(t, got, 4, "wide inversions are emitted, never dropped")
	assert.False(t, got[0].When.Equal(time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)),
		"an inversion wider than the window is not repaired")
}

func TestLookahead_SmallWindowIsPassthrough(t *testing.T) {
	recs := []records.Record{keyed(t, "2024-01-01T00:00:01Z", 0, 0)}
	iter := Lookahead(iterator.FromSlice(recs), 1)
	got := collect(t, iter)
	assert.Len(t, got, 1)
}

func TestConsolidate_PolyphaseMatchesDirectMerge(t *testing.T) {
	build := func() []iterator.Iterator {
		var streams []iterator.Iterator
		for s := 0; s < 9; s++ {
			var recs []records.Record
			for i := 0; i < 5; i++ {
				ts := time.Date(2024, 1, 1, 0, s, i*7%60, 0, time.UTC).Format(time.RFC3339)
				recs = append(recs, keyed(t, ts, s, uint64(i)))
			}
			streams = append(streams, iterator.FromSlice(recs))
		}
		return streams
	}

	direct, err := Consolidate(Options{FanIn: 16, SpillDir: t.TempDir()}, build()...)
	require.NoError(t, err)
	directRecs := collect(t, direct)

	poly, err := Consolidate(Options{FanIn: 3, SpillDir: t.TempDir()}, build()...)
	require.NoError(t, err)
	polyRecs := collect(t, poly)

	require.Len(t, directRecs, 45)
	require.Len(t, polyRecs, 45)
	assertNonDecreasing(t, directRecs)
	assertNonDecreasing(t, polyRecs)
	for i := range directRecs {
		assert.Equal(t, directRecs[i].Fields, polyRecs[i].Fields, "record %d differs", i)
	}
}

func TestConsolidate_LookaheadAppliedPerStream(t *testing.T) {
	src := iterator.FromSlice([]records.Record{
		keyed(t, "2024-01-01T00:00:02Z", 0, 0),
		keyed(t, "2024-01-01T00:00:01Z", 0, 1),
	})
	iter, err := Consolidate(Options{}, src)
	require.NoError(t, err)
	got := collect(t, iter)
	require.Len(t, got, 2)
	assertNonDecreasing(t, got)
}

func TestWriteReadRun_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	recs := []records.Record{
		keyed(t, "2024-01-01T00:00:01Z", 0, 0),
		keyed(t, "2024-01-01T00:00:02Z", 0, 1),
		unkeyed(1, 0),
	}
	path, err := writeRun(dir, iterator.FromSlice(recs))
	require.NoError(t, err)

	got := collect(t, readRun(path))
	require.Len(t, got, 3)
	for i := range recs {
		assert.Equal(t, recs[i].Fields, got[i].Fields)
		assert.Equal(t, recs[i].TimeOK, got[i].TimeOK)
		assert.Equal(t, recs[i].Stream, got[i].Stream)
		assert.Equal(t, recs[i].Seq, got[i].Seq)
		assert.True(t, recs[i].When.Equal(got[i].When))
	}

	_, statErr := os.Stat(path)
	assert.Error(t, statErr, "a consumed run file is removed")
}
