package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketview/seriesd/internal/analytics"
	"github.com/marketview/seriesd/internal/series"
)

// stubLoader lets tests control what a path loads to and count loads.
type stubLoader struct {
	loads  atomic.Int64
	loadFn func(path string) series.Series
}

func (l *stubLoader) Load(path string) series.Series {
	l.loads.Add(1)
	return l.loadFn(path)
}

func testSeries(n int) series.Series {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	samples := make([]series.Sample, n)
	for i := range samples {
		samples[i] = series.Sample{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Price:     100 + float64(i),
			Position:  1,
		}
	}
	return series.Series{Samples: samples}
}

func newTestManager(loadFn func(string) series.Series) (*Manager, *stubLoader) {
	loader := &stubLoader{loadFn: loadFn}
	return NewManager(loader, analytics.NewEngine(0)), loader
}

func TestGetLoadsOnFirstAccessOnly(t *testing.T) {
	m, loader := newTestManager(func(string) series.Series { return testSeries(10) })
	key := Key{Bucket: "b", SeriesID: "TS-1"}
	src := Source{Path: "/data/b/ts1.csv", ModTime: time.Now()}

	e1, ok := m.Get(key, src)
	require.True(t, ok)
	assert.Equal(t, uint64(1), e1.Version)
	assert.True(t, e1.Series.HasDerived)

	e2, ok := m.Get(key, src)
	require.True(t, ok)
	assert.Same(t, e1, e2)
	assert.Equal(t, int64(1), loader.loads.Load())
}

func TestRefreshIfStaleConcurrentSingleReload(t *testing.T) {
	m, loader := newTestManager(func(string) series.Series { return testSeries(10) })
	key := Key{Bucket: "b", SeriesID: "TS-1"}
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, ok := m.Get(key, Source{Path: "p", ModTime: t0})
	require.True(t, ok)

	// Many goroutines observe the same newer modification time; only
	// one reload may happen.
	t1 := t0.Add(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, ok := m.RefreshIfStale(key, Source{Path: "p", ModTime: t1})
			assert.True(t, ok)
			assert.Equal(t, uint64(2), e.Version)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(2), loader.loads.Load())
	e, _ := m.Peek(key)
	assert.Equal(t, uint64(2), e.Version)
}

func TestRefreshIfStaleSkipsWhenNotNewer(t *testing.T) {
	m, loader := newTestManager(func(string) series.Series { return testSeries(5) })
	key := Key{Bucket: "b", SeriesID: "TS-2"}
	t0 := time.Now()

	_, ok := m.RefreshIfStale(key, Source{Path: "p", ModTime: t0})
	require.True(t, ok)

	// Same and older modification times leave the entry alone.
	for _, mod := range []time.Time{t0, t0.Add(-time.Hour)} {
		e, ok := m.RefreshIfStale(key, Source{Path: "p", ModTime: mod})
		require.True(t, ok)
		assert.Equal(t, uint64(1), e.Version)
	}
	assert.Equal(t, int64(1), loader.loads.Load())
}

func TestReloadFailureKeepsPreviousEntry(t *testing.T) {
	var empty atomic.Bool
	m, _ := newTestManager(func(string) series.Series {
		if empty.Load() {
			return series.Series{}
		}
		return testSeries(10)
	})
	key := Key{Bucket: "b", SeriesID: "TS-3"}
	t0 := time.Now()

	e1, ok := m.Get(key, Source{Path: "p", ModTime: t0})
	require.True(t, ok)

	empty.Store(true)
	e2, ok := m.RefreshIfStale(key, Source{Path: "p", ModTime: t0.Add(time.Minute)})
	require.True(t, ok)
	assert.Same(t, e1, e2)
	assert.Equal(t, uint64(1), m.ReloadFailures())
}

func TestDistinctKeysDoNotBlockEachOther(t *testing.T) {
	release := make(chan struct{})
	m, _ := newTestManager(func(path string) series.Series {
		if path == "slow" {
			<-release
		}
		return testSeries(5)
	})

	go m.Get(Key{Bucket: "b", SeriesID: "TS-slow"}, Source{Path: "slow", ModTime: time.Now()})

	// The slow reload must not serialize an unrelated key.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := m.Get(Key{Bucket: "b", SeriesID: "TS-fast"}, Source{Path: "fast", ModTime: time.Now()})
		assert.True(t, ok)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reload of one key blocked another key")
	}
	close(release)
}

func TestSince(t *testing.T) {
	s := testSeries(10)
	m, _ := newTestManager(func(string) series.Series { return s })
	key := Key{Bucket: "b", SeriesID: "TS-4"}

	_, found := m.Peek(key)
	assert.False(t, found)

	_, _, found = m.Since(key, time.Time{})
	assert.False(t, found)

	_, ok := m.Get(key, Source{Path: "p", ModTime: time.Now()})
	require.True(t, ok)

	// Watermark before everything returns the full series.
	tail, hasNew, found := m.Since(key, s.First().Timestamp.Add(-time.Hour))
	require.True(t, found)
	assert.True(t, hasNew)
	assert.Equal(t, 10, tail.Len())

	// Mid-series watermark returns the strict suffix.
	tail, hasNew, _ = m.Since(key, s.Samples[6].Timestamp)
	assert.True(t, hasNew)
	assert.Equal(t, 3, tail.Len())

	// Watermark at the last sample means nothing new.
	_, hasNew, _ = m.Since(key, s.Last().Timestamp)
	assert.False(t, hasNew)
}

func TestSinceConsistentWithFullFetch(t *testing.T) {
	s := testSeries(50)
	m, _ := newTestManager(func(string) series.Series { return s })
	key := Key{Bucket: "b", SeriesID: "TS-5"}

	entry, ok := m.Get(key, Source{Path: "p", ModTime: time.Now()})
	require.True(t, ok)

	watermark := s.Samples[19].Timestamp
	tail, _, _ := m.Since(key, watermark)

	var want []series.Sample
	for _, sample := range entry.Series.Samples {
		if sample.Timestamp.After(watermark) {
			want = append(want, sample)
		}
	}
	assert.Equal(t, want, tail.Samples)
}

func TestDataVersionAdvancesOnReload(t *testing.T) {
	m, _ := newTestManager(func(string) series.Series { return testSeries(3) })
	t0 := time.Now()

	v0 := m.DataVersion()
	_, ok := m.Get(Key{Bucket: "b", SeriesID: "TS-6"}, Source{Path: "p", ModTime: t0})
	require.True(t, ok)
	v1 := m.DataVersion()
	assert.Greater(t, v1, v0)

	_, ok = m.RefreshIfStale(Key{Bucket: "b", SeriesID: "TS-6"}, Source{Path: "p", ModTime: t0.Add(time.Minute)})
	require.True(t, ok)
	assert.Greater(t, m.DataVersion(), v1)
}

func TestOnReloadCallback(t *testing.T) {
	m, _ := newTestManager(func(string) series.Series { return testSeries(3) })

	var events []Entry
	m.OnReload(func(e Entry) { events = append(events, e) })

	t0 := time.Now()
	key := Key{Bucket: "b", SeriesID: "TS-7"}
	_, ok := m.Get(key, Source{Path: "p", ModTime: t0})
	require.True(t, ok)
	_, ok = m.RefreshIfStale(key, Source{Path: "p", ModTime: t0.Add(time.Minute)})
	require.True(t, ok)
	// Not stale: no event.
	_, _ = m.RefreshIfStale(key, Source{Path: "p", ModTime: t0.Add(time.Minute)})

	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Version)
	assert.Equal(t, uint64(2), events[1].Version)
}
