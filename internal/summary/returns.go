package summary

import (
	"sort"
	"sync"

	"github.com/marketview/seriesd/internal/analytics"
	"github.com/marketview/seriesd/internal/cache"
	"github.com/marketview/seriesd/internal/discovery"
	"github.com/marketview/seriesd/pkg/pool"
)

// maxOverlayPoints bounds each symbol's contribution to the aggregate
// chart; the overlay trades resolution for payload size.
const maxOverlayPoints = 500

// assetColors keeps chart colors stable per underlying asset.
var assetColors = map[string]string{
	"BTC":   "#f7931a",
	"ETH":   "#627eea",
	"SOL":   "#00d18c",
	"LTC":   "#bebebe",
	"XRP":   "#23292f",
	"ADA":   "#0033ad",
	"DOT":   "#e6007a",
	"AVAX":  "#e84142",
	"MATIC": "#8247e5",
	"LINK":  "#2a5ada",
	"UNI":   "#ff007a",
}

const defaultAssetColor = "#999999"

// ReturnPoints is one symbol's chart trace.
type ReturnPoints struct {
	X []string  `json:"x"`
	Y []float64 `json:"y"`
}

// ReturnSeries is one symbol's fee-adjusted cumulative-return line
// for the all-symbol overlay chart.
type ReturnSeries struct {
	Symbol string       `json:"symbol"`
	Pair   string       `json:"pair"`
	Bucket string       `json:"bucket"`
	TSID   string       `json:"ts_id"`
	Color  string       `json:"color"`
	Data   ReturnPoints `json:"data"`
}

// AllReturns collects downsampled fee-adjusted cumulative-return
// traces for every symbol in the given buckets, in parallel. Symbols
// without usable data are dropped.
func (a *Aggregator) AllReturns(buckets []string) []ReturnSeries {
	p := pool.New(a.workers)
	p.Start()
	defer p.Stop()

	var (
		mu     sync.Mutex
		traces []ReturnSeries
		wg     sync.WaitGroup
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
				trace, ok := a.returnTrace(sym)
				if !ok {
					return
				}
				mu.Lock()
				traces = append(traces, trace)
				mu.Unlock()
			})
		}
	}
	wg.Wait()

	sort.Slice(traces, func(i, j int) bool {
		if traces[i].Symbol != traces[j].Symbol {
			return traces[i].Symbol < traces[j].Symbol
		}
		return traces[i].Pair < traces[j].Pair
	})
	return traces
}

func (a *Aggregator) returnTrace(sym discovery.Symbol) (ReturnSeries, bool) {
	key := cache.Key{Bucket: sym.Bucket, SeriesID: sym.SeriesID()}
	entry, ok := a.cache.Get(key, cache.Source{Path: sym.Path, ModTime: sym.ModTime})
	if !ok {
		return ReturnSeries{}, false
	}

	sampled := analytics.Downsample(entry.Series, maxOverlayPoints)

	trace := ReturnSeries{
		Symbol: sym.Symbol,
		Pair:   sym.Pair,
		Bucket: sym.Bucket,
		TSID:   sym.TSID,
		Color:  assetColor(sym.Symbol),
		Data: ReturnPoints{
			X: make([]string, 0, sampled.Len()),
			Y: make([]float64, 0, sampled.Len()),
		},
	}
	for _, sample := range sampled.Samples {
		trace.Data.X = append(trace.Data.X, sample.Timestamp.Format(timestampFormat))
		trace.Data.Y = append(trace.Data.Y, sample.CumulativeReturnAfterFees*100)
	}
	return trace, true
}

func assetColor(symbol string) string {
	if c, ok := assetColors[symbol]; ok {
		return c
	}
	return defaultAssetColor
}
