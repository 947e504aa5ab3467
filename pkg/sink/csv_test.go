package sink

import (
	"context"
	"strings"
	"testing"

	"github.com/logweave/logweave/pkg/iterator"
	"github.com/logweave/logweave/pkg/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(fields map[string]string) records.Record {
	r := records.New()
	for k, v := range fields {
		r.SetField(k, v)
	}
	return r
}

func TestWriteCSV(t *testing.T) {
	iter := iterator.FromSlice([]records.Record{
		rec(map[string]string{"Timestamp": "2024-01-01T00:00:01Z", "SysRef": "Q2952601", "Message": "first"}),
		rec(map[string]string{"Timestamp": "2024-01-01T00:00:02Z", "Message": "no sysref"}),
	})
	var buf strings.Builder
	n, err := WriteCSV(context.Background(), iter, []string{"Timestamp", "SysRef", "Message"}, &buf)
	require.NoError(t, err)

	want := "Timestamp,SysRef,Message\n" +
		"2024-01-01T00:00:01Z,Q2952601,first\n" +
		"2024-01-01T00:00:02Z,,no sysref\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, int64(len(want)), n)
}

func TestWriteCSV_EscapesDelimiterAndQuotes(t *testing.T) {
	iter := iterator.FromSlice([]records.Record{
		rec(map[string]string{"Message": `contains, a comma and "quotes"`}),
	})
	var buf strings.Builder
	_, err := WriteCSV(context.Background(), iter, []string{"Message"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, "Message\n\"contains, a comma and \"\"quotes\"\"\"\n", buf.String())
}

func TestWriteCSV_FixedColumnCount(t *testing.T) {
	iter := iterator.FromSlice([]records.Record{
		rec(map[string]string{"A": "1"}),
		rec(map[string]string{"B": "2"}),
	})
	var buf strings.Builder
	_, err := WriteCSV(context.Background(), iter, []string{"A", "B", "C"}, &buf)
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.Equal(t, 2, strings.Count(line, ","), "every row keeps the declared width")
	}
}

func TestWriteCSV_CancelledRunFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	iter := iterator.FromSlice([]records.Record{
		rec(map[string]string{"A": "1"}),
	})
	var buf strings.Builder
	_, err := WriteCSV(ctx, iter, []string{"A"}, &buf)
	assert.ErrorIs(t, err, context.Canceled)
}
