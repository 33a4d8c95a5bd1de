package analytics

import (
	"sort"
)

// Stats summarizes a set of per-symbol values.
type Stats struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Positive int     `json:"positive"`
	Negative int     `json:"negative"`
}

// Summarize computes distributional statistics over values. The
// median is exact: sorted midpoint for odd counts, midpoint average
// for even counts.
func Summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	st := Stats{
		Count: len(values),
		Min:   values[0],
		Max:   values[0],
	}

	var sum float64
	for _, v := range values {
		sum += v
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
		if v > 0 {
			st.Positive++
		} else if v < 0 {
			st.Negative++
		}
	}
	st.Mean = sum / float64(len(values))
	st.Median = Median(values)
	return st
}

// Median returns the true median of values without mutating them.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// SignCounts returns how many values are strictly positive and
// strictly negative.
func SignCounts(values []float64) (positive, negative int) {
	for _, v := range values {
		if v > 0 {
			positive++
		} else if v < 0 {
			negative++
		}
	}
	return positive, negative
}
