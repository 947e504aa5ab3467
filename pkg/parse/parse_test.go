package parse

import (
	"strings"
	"testing"

	"github.com/logweave/logweave/pkg/profile"
	"github.com/logweave/logweave/pkg/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
defaults:
  matchers:
    Timestamp: '^(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?)'
    AppName: 'AppName=(\S+)'
    SysRef: 'SysRef=([a-zA-Z0-9]{8})'
  columns: "Timestamp, AppName, SysRef, Message"
`

func testParser(t *testing.T) *Parser {
	set, err := profile.Load(strings.NewReader(testConfig))
	require.NoError(t, err)
	prof, ok := set.Profile(profile.DefaultsName)
	require.True(t, ok)
	return New(prof)
}

func TestParse_OriginalSourceIsVerbatim(t *testing.T) {
	p := testParser(t)
	line := "2018-01-23 09:12:32.9869213 | AppName=Case.Host | some message SysRef=Q2952601"
	rec := p.Parse(line)
	got, ok := rec.Field(records.OriginalSourceColumn)
	require.True(t, ok)
	assert.Equal(t, line, got)
}

func TestParse_ExtractsColumns(t *testing.T) {
	p := testParser(t)
	rec := p.Parse("2018-01-23 09:12:32.9869213 | AppName=Case.Host | some message SysRef=Q2952601")

	app, _ := rec.Field("AppName")
	assert.Equal(t, "Case.Host", app)
	ref, _ := rec.Field("SysRef")
	assert.Equal(t, "Q2952601", ref)
	ts, _ := rec.Field(records.TimestampColumn)
	assert.Equal(t, "2018-01-23 09:12:32.9869213", ts)
	assert.True(t, rec.TimeOK)
}

func TestParse_AbsentColumnIsNotAnError(t *testing.T) {
	p := testParser(t)
	rec := p.Parse("2018-01-23 09:12:32.9869213 | just a message")
	assert.False(t, rec.HasField("SysRef"))
	assert.False(t, rec.HasField("AppName"))
}

func TestParse_MessageAfterPrelude(t *testing.T) {
	p := testParser(t)
	rec := p.Parse("2018-01-23 09:12:32.9869213 | AppName=Case.Host | the message body")
	msg, _ := rec.Field(records.MessageColumn)
	assert.Equal(t, "the message body", msg)
}

func TestParse_MessageDefaultsToWholeLine(t *testing.T) {
	p := testParser(t)
	rec := p.Parse("completely unstructured line")
	msg, _ := rec.Field(records.MessageColumn)
	assert.Equal(t, "completely unstructured line", msg)
}

func TestParse_MessageNeverEmpty(t *testing.T) {
	p := testParser(t)
	// The entire line is prelude, so the fallback is the whole line.
	line := "2018-01-23 09:12:32.9869213 | AppName=Case.Host"
	rec := p.Parse(line)
	msg, ok := rec.Field(records.MessageColumn)
	require.True(t, ok)
	assert.NotEmpty(t, msg)
	assert.Equal(t, line, msg)
}

func TestParse_UnparsableTimestampKeptRaw(t *testing.T) {
	set, err := profile.Load(strings.NewReader(`
defaults:
  matchers:
    Timestamp: '^\[(\w+)\]'
  columns: "Timestamp, Message"
`))
	require.NoError(t, err)
	prof, _ := set.Profile(profile.DefaultsName)
	rec := New(prof).Parse("[garbage] the message")

	raw, ok := rec.Field(records.TimestampColumn)
	require.True(t, ok, "the raw capture is kept")
	assert.Equal(t, "garbage", raw)
	assert.False(t, rec.TimeOK, "the ordering key is unknown")
}

func TestParse_Deterministic(t *testing.T) {
	p := testParser(t)
	line := "2018-01-23 09:12:32.9869213 | AppName=Case.Host | body SysRef=Q2952601"
	a := p.Parse(line)
	b := p.Parse(line)
	assert.Equal(t, a.Fields, b.Fields)
	assert.Equal(t, a.When, b.When)
}

func TestParse_ExtractionSoundness(t *testing.T) {
	p := testParser(t)
	line := "2018-01-23 09:12:32.9869213 | AppName=Case.Host | body SysRef=Q2952601"
	rec := p.Parse(line)
	for _, m := range []string{"AppName", "SysRef", records.TimestampColumn} {
		v, ok := rec.Field(m)
		require.True(t, ok)
		assert.True(t, testMatcher(t, p, m).MatchesValue(v),
			"stored value %q must still satisfy matcher %s", v, m)
	}
}

func testMatcher(t *testing.T, p *Parser, name string) *profile.Matcher {
	m := p.prof.Matcher(name)
	require.NotNil(t, m)
	return m
}

func TestParse_ScrubsEmbeddedNewlines(t *testing.T) {
	p := testParser(t)
	rec := p.Parse("first part\rsecond part")
	msg, _ := rec.Field(records.MessageColumn)
	assert.Equal(t, "first part second part", msg)

	orig, _ := rec.Field(records.OriginalSourceColumn)
	assert.Equal(t, "first part\rsecond part", orig, "OriginalSource stays untouched")
}

func TestParse_TruncatesLongMessages(t *testing.T) {
	set, err := profile.Load(strings.NewReader(`
defaults:
  max_message_length: 10
`))
	require.NoError(t, err)
	prof, _ := set.Profile(profile.DefaultsName)
	rec := New(prof).Parse("0123456789 overflowing part")

	msg, _ := rec.Field(records.MessageColumn)
	assert.Equal(t, "0123456789", msg)
	orig, _ := rec.Field(records.OriginalSourceColumn)
	assert.Equal(t, "0123456789 overflowing part", orig)
}
