package series

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "series.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCanonicalSchema(t *testing.T) {
	path := writeFile(t, `timestamp,close,position
2025-06-01 00:00:00,100.5,0
2025-06-01 00:01:00,101.0,1
2025-06-01 00:02:00,100.0,-1
`)

	s := NewLoader().Load(path)
	require.Equal(t, 3, s.Len())
	assert.False(t, s.HasDerived)
	assert.Equal(t, 100.5, s.Samples[0].Price)
	assert.Equal(t, -1.0, s.Samples[2].Position)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 1, 0, 0, time.UTC), s.Samples[1].Timestamp)
}

func TestLoadLegacySchema(t *testing.T) {
	path := writeFile(t, `Close time,Close,Position
2025-06-01 00:00:00,100,0
2025-06-01 00:01:00,110,1
`)

	s := NewLoader().Load(path)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, 110.0, s.Samples[1].Price)
	assert.Equal(t, 1.0, s.Samples[1].Position)
}

func TestLoadPrecomputedColumns(t *testing.T) {
	path := writeFile(t, `datetime,close,position,returns,position_lag,strategy_returns,cumulative_return
2025-06-01 00:00:00,100,0,0,0,0,0
2025-06-01 00:01:00,110,1,0.1,0,0,0.05
`)

	s := NewLoader().Load(path)
	require.Equal(t, 2, s.Len())
	assert.True(t, s.HasDerived)
	assert.Equal(t, 0.05, s.Samples[1].CumulativeReturn)
}

func TestLoadSortsByTimestamp(t *testing.T) {
	path := writeFile(t, `timestamp,close,position
2025-06-01 00:02:00,102,0
2025-06-01 00:00:00,100,0
2025-06-01 00:01:00,101,0
`)

	s := NewLoader().Load(path)
	require.Equal(t, 3, s.Len())
	for i := 1; i < s.Len(); i++ {
		assert.True(t, s.Samples[i].Timestamp.After(s.Samples[i-1].Timestamp))
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := NewLoader().Load(filepath.Join(t.TempDir(), "nope.csv"))
	assert.True(t, s.Empty())
}

func TestLoadEmptyFile(t *testing.T) {
	s := NewLoader().Load(writeFile(t, ""))
	assert.True(t, s.Empty())
}

func TestLoadUnknownSchema(t *testing.T) {
	s := NewLoader().Load(writeFile(t, `foo,bar
1,2
`))
	assert.True(t, s.Empty())
}

func TestLoadMalformedNumericCell(t *testing.T) {
	path := writeFile(t, `timestamp,close,position
2025-06-01 00:00:00,abc,1
2025-06-01 00:01:00,101,xyz
`)

	s := NewLoader().Load(path)
	require.Equal(t, 2, s.Len())
	assert.Zero(t, s.Samples[0].Price)
	assert.Zero(t, s.Samples[1].Position)
}

func TestParseTimestampFormats(t *testing.T) {
	want := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	for _, raw := range []string{
		"2025-06-01 12:30:00",
		"2025-06-01T12:30:00",
		"2025-06-01T12:30:00Z",
	} {
		got, err := ParseTimestamp(raw)
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(want), raw)
	}

	epoch, err := ParseTimestamp("1748780000")
	require.NoError(t, err)
	assert.Equal(t, int64(1748780000), epoch.Unix())

	_, err = ParseTimestamp("not a time")
	assert.Error(t, err)
}

func TestSeriesAfter(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := Series{Samples: []Sample{
		{Timestamp: base},
		{Timestamp: base.Add(time.Minute)},
		{Timestamp: base.Add(2 * time.Minute)},
	}}

	// Strict inequality: a sample exactly at the watermark is already
	// delivered.
	assert.Equal(t, 2, s.After(base).Len())
	assert.Equal(t, 1, s.After(base.Add(time.Minute)).Len())
	assert.Equal(t, 0, s.After(base.Add(2*time.Minute)).Len())
	assert.Equal(t, 3, s.After(base.Add(-time.Hour)).Len())
}
