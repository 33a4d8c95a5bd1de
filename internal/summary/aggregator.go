// Package summary fans out per-symbol statistics computation across
// all configured buckets and merges the results into cross-symbol
// aggregates. One symbol's failure never aborts the batch.
package summary

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketview/seriesd/internal/analytics"
	"github.com/marketview/seriesd/internal/cache"
	"github.com/marketview/seriesd/internal/discovery"
	"github.com/marketview/seriesd/pkg/pool"
)

// Row offsets for the windowed changes. The producer emits evenly
// 1-minute-spaced samples, so 1440 rows is 24 hours and 10080 rows is
// 7 days. Kept row-based for compatibility with existing dashboards.
const (
	rowsPerDay  = 1440
	rowsPerWeek = 10080
)

const timestampFormat = "2006-01-02 15:04:05"

// Record is the per-symbol summary row.
type Record struct {
	Bucket        string  `json:"bucket"`
	BucketRaw     string  `json:"bucket_raw"`
	Symbol        string  `json:"symbol"`
	SymbolPair    string  `json:"symbol_pair"`
	Pair          string  `json:"pair"`
	TSID          string  `json:"ts_id"`
	Freshness     string  `json:"freshness"`
	LastUpdate    string  `json:"last_update"`
	MinutesAgo    int     `json:"minutes_ago"`
	LastPrice     float64 `json:"last_price"`
	Position      string  `json:"position"`
	PositionValue int     `json:"position_value"`

	// Returns and changes are percent-scaled; cumulative figures are
	// net of fees.
	CumulativeReturn        float64 `json:"cumulative_return"`
	MaxReturn               float64 `json:"max_return"`
	Change24h               float64 `json:"change_24h"`
	Change7d                float64 `json:"change_7d"`
	ConsecutivePositiveDays int     `json:"consecutive_positive_days"`
}

// OverallStats aggregates across every symbol in the batch.
type OverallStats struct {
	TotalSymbols     int     `json:"total_symbols"`
	FreshSymbols     int     `json:"fresh_symbols"`
	FreshnessPercent float64 `json:"freshness_percent"`
	AvgReturn        float64 `json:"avg_return"`
	MedianReturn     float64 `json:"median_return"`
	MinReturn        float64 `json:"min_return"`
	MaxReturn        float64 `json:"max_return"`
	PositiveCum      int     `json:"positive_cumulative"`
	NegativeCum      int     `json:"negative_cumulative"`
	Positive24h      int     `json:"positive_24h"`
	Negative24h      int     `json:"negative_24h"`
	TotalBuckets     int     `json:"total_buckets"`
	Skipped          int     `json:"skipped"`
}

// GroupStats aggregates the symbols sharing one underlying asset.
type GroupStats struct {
	TotalSymbols     int     `json:"total_symbols"`
	FreshSymbols     int     `json:"fresh_symbols"`
	FreshnessPercent float64 `json:"freshness_percent"`
	AvgReturn        float64 `json:"avg_return"`
	MedianReturn     float64 `json:"median_return"`
	MinReturn        float64 `json:"min_return"`
	MaxReturn        float64 `json:"max_return"`
	PositiveCum      int     `json:"positive_cumulative"`
	NegativeCum      int     `json:"negative_cumulative"`
	Positive24h      int     `json:"positive_24h"`
	Negative24h      int     `json:"negative_24h"`
	ActivePositions  int     `json:"active_positions"`
}

// Result is the full summary payload.
type Result struct {
	Symbols    []Record              `json:"symbols"`
	Stats      OverallStats          `json:"stats"`
	GroupStats map[string]GroupStats `json:"coin_stats"`
}

// Aggregator computes batch summaries over the series cache.
type Aggregator struct {
	disc    *discovery.Service
	cache   *cache.Manager
	workers int
	logger  *logrus.Entry
}

// New creates an aggregator. A non-positive worker count falls back
// to the hardware-derived bound.
func New(disc *discovery.Service, c *cache.Manager, workers int) *Aggregator {
	if workers <= 0 {
		workers = pool.MaxWorkers()
	}
	return &Aggregator{
		disc:    disc,
		cache:   c,
		workers: workers,
		logger:  logrus.WithField("component", "summary-aggregator"),
	}
}

// Summarize computes per-symbol records across the given buckets in
// parallel, then merges overall and per-asset statistics. Symbols
// whose computation fails are dropped and counted, not propagated.
func (a *Aggregator) Summarize(buckets []string) *Result {
	type outcome struct {
		record Record
		err    error
		symbol string
	}

	p := pool.New(a.workers)
	p.Start()
	defer p.Stop()

	var (
		mu       sync.Mutex
		outcomes []outcome
		wg       sync.WaitGroup
	)

	for _, bucket := range buckets {
		symbols, err := a.disc.Symbols(bucket)
		if err != nil {
			a.logger.WithField("bucket", bucket).Warnf("skipping bucket: %v", err)
			continue
		}
		for _, sym := range symbols {
			sym := sym
			wg.Add(1)
			p.Submit(func() {
				defer wg.Done()
				rec, err := a.symbolRecord(sym)
				mu.Lock()
				outcomes = append(outcomes, outcome{record: rec, err: err, symbol: sym.Symbol})
				mu.Unlock()
			})
		}
	}
	wg.Wait()

	result := &Result{GroupStats: make(map[string]GroupStats)}
	for _, o := range outcomes {
		if o.err != nil {
			a.logger.Warnf("skipping symbol %s: %v", o.symbol, o.err)
			result.Stats.Skipped++
			continue
		}
		result.Symbols = append(result.Symbols, o.record)
	}

	// Completion order is nondeterministic; sort for stable output.
	sort.Slice(result.Symbols, func(i, j int) bool {
		if result.Symbols[i].Symbol != result.Symbols[j].Symbol {
			return result.Symbols[i].Symbol < result.Symbols[j].Symbol
		}
		return result.Symbols[i].Pair < result.Symbols[j].Pair
	})

	a.mergeStats(result)
	return result
}

func (a *Aggregator) symbolRecord(sym discovery.Symbol) (Record, error) {
	key := cache.Key{Bucket: sym.Bucket, SeriesID: sym.SeriesID()}
	entry, ok := a.cache.Get(key, cache.Source{Path: sym.Path, ModTime: sym.ModTime})
	if !ok {
		return Record{}, fmt.Errorf("no usable data for %s", key)
	}

	s := entry.Series
	last := s.Last()

	rec := Record{
		Bucket:        discovery.DisplayName(sym.Bucket),
		BucketRaw:     sym.Bucket,
		Symbol:        sym.Symbol,
		SymbolPair:    fmt.Sprintf("%s (%s)", sym.Symbol, sym.Pair),
		Pair:          sym.Pair,
		TSID:          sym.TSID,
		Freshness:     sym.Freshness,
		LastUpdate:    sym.ModTime.Format("15:04:05"),
		MinutesAgo:    int(time.Since(sym.ModTime).Minutes()),
		LastPrice:     last.Price,
		Position:      classifyPosition(last.Position),
		PositionValue: int(last.Position),
	}

	rec.CumulativeReturn = last.CumulativeReturnAfterFees * 100
	rec.MaxReturn = s.First().CumulativeReturnAfterFees * 100
	for _, sample := range s.Samples[1:] {
		if v := sample.CumulativeReturnAfterFees * 100; v > rec.MaxReturn {
			rec.MaxReturn = v
		}
	}

	rec.Change24h = windowChange(s, rowsPerDay, false)
	rec.Change7d = windowChange(s, rowsPerWeek, true)
	rec.ConsecutivePositiveDays = consecutivePositiveDays(s)
	return rec, nil
}

func (a *Aggregator) mergeStats(result *Result) {
	result.Stats.TotalSymbols = len(result.Symbols)
	if len(result.Symbols) == 0 {
		return
	}

	returns := make([]float64, 0, len(result.Symbols))
	changes24h := make([]float64, 0, len(result.Symbols))
	bucketSet := make(map[string]struct{})
	groups := make(map[string][]Record)

	for _, rec := range result.Symbols {
		returns = append(returns, rec.CumulativeReturn)
		changes24h = append(changes24h, rec.Change24h)
		bucketSet[rec.BucketRaw] = struct{}{}
		groups[rec.Symbol] = append(groups[rec.Symbol], rec)
		if rec.Freshness == "fresh" {
			result.Stats.FreshSymbols++
		}
	}

	st := analytics.Summarize(returns)
	result.Stats.AvgReturn = st.Mean
	result.Stats.MedianReturn = st.Median
	result.Stats.MinReturn = st.Min
	result.Stats.MaxReturn = st.Max
	result.Stats.PositiveCum = st.Positive
	result.Stats.NegativeCum = st.Negative
	result.Stats.Positive24h, result.Stats.Negative24h = analytics.SignCounts(changes24h)
	result.Stats.TotalBuckets = len(bucketSet)
	result.Stats.FreshnessPercent = 100 * float64(result.Stats.FreshSymbols) / float64(result.Stats.TotalSymbols)

	for asset, recs := range groups {
		result.GroupStats[asset] = groupStats(recs)
	}
}

func groupStats(recs []Record) GroupStats {
	returns := make([]float64, 0, len(recs))
	changes24h := make([]float64, 0, len(recs))
	gs := GroupStats{TotalSymbols: len(recs)}

	for _, rec := range recs {
		returns = append(returns, rec.CumulativeReturn)
		changes24h = append(changes24h, rec.Change24h)
		if rec.Freshness == "fresh" {
			gs.FreshSymbols++
		}
		if rec.Position != "FLAT" {
			gs.ActivePositions++
		}
	}

	st := analytics.Summarize(returns)
	gs.AvgReturn = st.Mean
	gs.MedianReturn = st.Median
	gs.MinReturn = st.Min
	gs.MaxReturn = st.Max
	gs.PositiveCum = st.Positive
	gs.NegativeCum = st.Negative
	gs.Positive24h, gs.Negative24h = analytics.SignCounts(changes24h)
	gs.FreshnessPercent = 100 * float64(gs.FreshSymbols) / float64(gs.TotalSymbols)
	return gs
}

func classifyPosition(position float64) string {
	switch {
	case position > 0:
		return "LONG"
	case position < 0:
		return "SHORT"
	default:
		return "FLAT"
	}
}
