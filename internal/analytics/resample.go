package analytics

import (
	"time"

	"github.com/marketview/seriesd/internal/series"
)

// AutoPeriod picks a resample bucket width from the total sample
// count. Zero means the series is small enough to chart as-is.
func AutoPeriod(sampleCount int) time.Duration {
	switch {
	case sampleCount > 50000:
		return time.Hour
	case sampleCount > 20000:
		return 30 * time.Minute
	case sampleCount > 10000:
		return 15 * time.Minute
	case sampleCount > 5000:
		return 5 * time.Minute
	default:
		return 0
	}
}

// Resample buckets a series by the given period, keeping the last
// observation in each bucket. Last-value-wins preserves point-in-time
// state semantics for position and cumulative-return columns. Buckets
// with no observations are dropped. A zero period selects an
// automatic width from the series length; if the series is small
// enough, it is returned unchanged. The input is never mutated.
func Resample(s series.Series, period time.Duration) series.Series {
	if s.Empty() {
		return s
	}
	if period == 0 {
		period = AutoPeriod(s.Len())
		if period == 0 {
			return s
		}
	}

	out := make([]series.Sample, 0, s.Len()/2)
	var bucket time.Time
	for i, sample := range s.Samples {
		b := sample.Timestamp.Truncate(period)
		if i == 0 || !b.Equal(bucket) {
			bucket = b
			out = append(out, sample)
		} else {
			out[len(out)-1] = sample
		}
		out[len(out)-1].Timestamp = bucket
	}

	return series.Series{Samples: out, HasDerived: s.HasDerived}
}

// Downsample reduces a series to at most maxPoints by taking evenly
// strided samples. Used for the all-symbol overlay chart where exact
// bucket boundaries do not matter.
func Downsample(s series.Series, maxPoints int) series.Series {
	if maxPoints <= 0 || s.Len() <= maxPoints {
		return s
	}
	step := s.Len() / maxPoints
	out := make([]series.Sample, 0, maxPoints+1)
	for i := 0; i < s.Len(); i += step {
		out = append(out, s.Samples[i])
	}
	return series.Series{Samples: out, HasDerived: s.HasDerived}
}
