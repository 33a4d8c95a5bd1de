// Package cache owns the in-memory series cache: one entry per
// (bucket, series-id) key, reloaded from source when the source file's
// modification time moves forward. Entries are immutable snapshots,
// replaced wholesale on reload, so readers never observe a torn write.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketview/seriesd/internal/analytics"
	"github.com/marketview/seriesd/internal/series"
)

// Key addresses one cache entry.
type Key struct {
	Bucket   string
	SeriesID string
}

func (k Key) String() string { return k.Bucket + "/" + k.SeriesID }

// Source describes where an entry's data comes from, as resolved by
// discovery: an absolute file path and its last-modification time.
type Source struct {
	Path    string
	ModTime time.Time
}

// Entry is an immutable cache snapshot. Version increases by exactly
// one on every successful reload; consumers can compare versions to
// detect "no new data" without inspecting the series.
type Entry struct {
	Key              Key
	Series           series.Series
	SourceModifiedAt time.Time
	Version          uint64
}

// Loader reads a source file into a series. Satisfied by
// series.Loader.
type Loader interface {
	Load(path string) series.Series
}

// Manager is safe for many concurrent readers and writers across
// different keys. Operations on the same key are mutually exclusive,
// so at most one reload per key is ever in flight.
type Manager struct {
	loader Loader
	engine *analytics.Engine
	logger *logrus.Entry

	entries sync.Map // Key -> *Entry
	locks   sync.Map // Key -> *sync.Mutex

	dataVersion    atomic.Uint64
	lastUpdate     atomic.Int64 // unix nanos of the last successful reload
	reloadFailures atomic.Uint64

	// onReload, when set, is invoked after every successful reload
	// outside the per-key lock.
	onReload func(Entry)
}

// NewManager creates a cache manager backed by the given loader and
// metrics engine.
func NewManager(loader Loader, engine *analytics.Engine) *Manager {
	m := &Manager{
		loader: loader,
		engine: engine,
		logger: logrus.WithField("component", "cache-manager"),
	}
	m.dataVersion.Store(1)
	m.lastUpdate.Store(time.Now().UTC().UnixNano())
	return m
}

// OnReload registers a callback invoked after each successful reload.
// Must be called before the manager is shared between goroutines.
func (m *Manager) OnReload(fn func(Entry)) { m.onReload = fn }

// keyLock returns the mutex for a key, creating it atomically on
// first use. LoadOrStore guarantees two concurrent first-time
// accesses converge on the same mutex.
func (m *Manager) keyLock(key Key) *sync.Mutex {
	if mu, ok := m.locks.Load(key); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Get returns the current entry for a key, loading it on first
// access. It does not check staleness; use RefreshIfStale for that.
// ok is false when no entry exists and the source yields no usable
// data.
func (m *Manager) Get(key Key, src Source) (*Entry, bool) {
	if e, ok := m.entries.Load(key); ok {
		return e.(*Entry), true
	}

	mu := m.keyLock(key)
	mu.Lock()
	e, ok := m.loadLocked(key, src)
	mu.Unlock()

	if ok && m.onReload != nil {
		m.onReload(*e)
	}
	return e, ok
}

// RefreshIfStale returns the current entry, reloading it first when
// the observed source modification time is strictly newer than the
// stored one. A failed reload (empty source) leaves the existing
// entry untouched and is reported as a soft failure.
func (m *Manager) RefreshIfStale(key Key, src Source) (*Entry, bool) {
	mu := m.keyLock(key)
	mu.Lock()
	e, ok, reloaded := m.refreshLocked(key, src)
	mu.Unlock()

	if reloaded && m.onReload != nil {
		m.onReload(*e)
	}
	return e, ok
}

func (m *Manager) refreshLocked(key Key, src Source) (entry *Entry, ok, reloaded bool) {
	cur, exists := m.entries.Load(key)
	if !exists {
		e, ok := m.loadLocked(key, src)
		return e, ok, ok
	}

	prev := cur.(*Entry)
	if !src.ModTime.After(prev.SourceModifiedAt) {
		return prev, true, false
	}

	loaded := m.engine.ComputeDerived(m.loader.Load(src.Path))
	if loaded.Empty() {
		// Keep the last good snapshot rather than serving nothing.
		m.reloadFailures.Add(1)
		m.logger.WithField("key", key.String()).Warn("reload yielded no data, keeping previous entry")
		return prev, true, false
	}

	next := &Entry{
		Key:              key,
		Series:           loaded,
		SourceModifiedAt: src.ModTime,
		Version:          prev.Version + 1,
	}
	m.entries.Store(key, next)
	m.bumpVersion()
	m.logger.WithFields(logrus.Fields{
		"key":     key.String(),
		"rows":    loaded.Len(),
		"version": next.Version,
	}).Info("cache entry refreshed")
	return next, true, true
}

func (m *Manager) loadLocked(key Key, src Source) (*Entry, bool) {
	// Double-check under the key lock: another goroutine may have
	// loaded while we waited.
	if e, ok := m.entries.Load(key); ok {
		return e.(*Entry), true
	}

	loaded := m.engine.ComputeDerived(m.loader.Load(src.Path))
	if loaded.Empty() {
		m.reloadFailures.Add(1)
		return nil, false
	}

	e := &Entry{
		Key:              key,
		Series:           loaded,
		SourceModifiedAt: src.ModTime,
		Version:          1,
	}
	m.entries.Store(key, e)
	m.bumpVersion()
	m.logger.WithFields(logrus.Fields{
		"key":  key.String(),
		"rows": loaded.Len(),
	}).Info("cache entry loaded")
	return e, true
}

// Peek returns the current entry without loading. Used by reads that
// must not trigger I/O, like the incremental differ.
func (m *Manager) Peek(key Key) (*Entry, bool) {
	if e, ok := m.entries.Load(key); ok {
		return e.(*Entry), true
	}
	return nil, false
}

// Since returns the cached samples strictly newer than the watermark.
// hasNew is false when the watermark is at or past the last sample.
// found is false when the key has no cache entry at all; staleness
// refresh is the caller's responsibility and is not performed here.
func (m *Manager) Since(key Key, watermark time.Time) (samples series.Series, hasNew, found bool) {
	e, ok := m.Peek(key)
	if !ok {
		return series.Series{}, false, false
	}
	tail := e.Series.After(watermark)
	return tail, !tail.Empty(), true
}

// Keys returns a snapshot of all cached keys.
func (m *Manager) Keys() []Key {
	var keys []Key
	m.entries.Range(func(k, _ interface{}) bool {
		keys = append(keys, k.(Key))
		return true
	})
	return keys
}

// DataVersion returns the process-wide change counter, incremented on
// every successful load or reload of any key.
func (m *Manager) DataVersion() uint64 { return m.dataVersion.Load() }

// LastUpdate returns the time of the most recent successful reload.
func (m *Manager) LastUpdate() time.Time {
	return time.Unix(0, m.lastUpdate.Load()).UTC()
}

// ReloadFailures returns how many reloads degraded to keeping the
// previous snapshot.
func (m *Manager) ReloadFailures() uint64 { return m.reloadFailures.Load() }

func (m *Manager) bumpVersion() {
	m.dataVersion.Add(1)
	m.lastUpdate.Store(time.Now().UTC().UnixNano())
}
