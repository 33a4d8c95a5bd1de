package series

import (
	"time"
)

// Sample is a single observation of a strategy time series. The raw
// fields come straight from the source file; the derived fields are
// filled in by the analytics engine (or by the source itself, when the
// producer already ships them).
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Position  float64   `json:"position"`

	Return                    float64 `json:"return"`
	PositionLag               float64 `json:"position_lag"`
	StrategyReturn            float64 `json:"strategy_return"`
	CumulativeReturn          float64 `json:"cumulative_return"`
	TransactionCost           float64 `json:"transaction_cost"`
	StrategyReturnAfterFees   float64 `json:"strategy_return_after_fees"`
	CumulativeReturnAfterFees float64 `json:"cumulative_return_after_fees"`
}

// Series is an ascending-by-timestamp sequence of samples for one
// symbol. Once published by the cache it is immutable: readers never
// mutate it and the cache only ever replaces it wholesale.
type Series struct {
	Samples []Sample

	// HasDerived is true when the derived columns are populated,
	// either by the source file or by the analytics engine.
	HasDerived bool
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Samples) }

// Empty reports whether the series holds no samples.
func (s Series) Empty() bool { return len(s.Samples) == 0 }

// Last returns the most recent sample. Callers must check Empty first.
func (s Series) Last() Sample { return s.Samples[len(s.Samples)-1] }

// First returns the earliest sample. Callers must check Empty first.
func (s Series) First() Sample { return s.Samples[0] }

// After returns the suffix of the series with timestamps strictly
// newer than the watermark. A sample exactly at the watermark counts
// as already delivered.
func (s Series) After(watermark time.Time) Series {
	// Samples are ordered, so binary-search the first strictly-newer one.
	lo, hi := 0, len(s.Samples)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.Samples[mid].Timestamp.After(watermark) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return Series{Samples: s.Samples[lo:], HasDerived: s.HasDerived}
}
