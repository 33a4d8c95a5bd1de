package analytics

import (
	"github.com/marketview/seriesd/internal/series"
)

// maxDisplayedPoints caps how many points a chart payload reports as
// displayable.
const maxDisplayedPoints = 5000

const timestampFormat = "2006-01-02 15:04:05"

// SeriesMetrics is the headline record for one series. Return values
// are percent-scaled; TotalFees is the spread between gross and
// fee-adjusted cumulative return.
type SeriesMetrics struct {
	LastPrice                 float64 `json:"last_price"`
	LastPosition              float64 `json:"last_position"`
	CumulativeReturn          float64 `json:"cumulative_return"`
	MaxReturn                 float64 `json:"max_return"`
	CumulativeReturnAfterFees float64 `json:"cumulative_return_after_fees"`
	MaxReturnAfterFees        float64 `json:"max_return_after_fees"`
	TotalFees                 float64 `json:"total_fees"`
	TotalPoints               int     `json:"total_points"`
	DisplayedPoints           int     `json:"displayed_points"`
	LastTimestamp             string  `json:"last_timestamp"`
}

// Metrics computes the headline record for a derived series.
func Metrics(s series.Series) SeriesMetrics {
	if s.Empty() {
		return SeriesMetrics{}
	}

	last := s.Last()
	m := SeriesMetrics{
		LastPrice:                 last.Price,
		LastPosition:              last.Position,
		CumulativeReturn:          last.CumulativeReturn * 100,
		CumulativeReturnAfterFees: last.CumulativeReturnAfterFees * 100,
		TotalPoints:               s.Len(),
		DisplayedPoints:           min(s.Len(), maxDisplayedPoints),
		LastTimestamp:             last.Timestamp.Format(timestampFormat),
	}

	m.MaxReturn = s.First().CumulativeReturn * 100
	m.MaxReturnAfterFees = s.First().CumulativeReturnAfterFees * 100
	for _, sample := range s.Samples[1:] {
		if v := sample.CumulativeReturn * 100; v > m.MaxReturn {
			m.MaxReturn = v
		}
		if v := sample.CumulativeReturnAfterFees * 100; v > m.MaxReturnAfterFees {
			m.MaxReturnAfterFees = v
		}
	}

	m.TotalFees = m.CumulativeReturn - m.CumulativeReturnAfterFees
	return m
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
