package summary

import (
	"github.com/marketview/seriesd/internal/series"
)

// windowChange returns the percentage price change over a fixed row
// offset. When the series is shorter than the window, the 24h change
// reports 0 while the 7d change falls back to the earliest sample.
func windowChange(s series.Series, offset int, fallbackToFirst bool) float64 {
	if s.Empty() {
		return 0
	}
	last := s.Last().Price

	var ref float64
	switch {
	case s.Len() > offset:
		ref = s.Samples[s.Len()-offset].Price
	case fallbackToFirst:
		ref = s.First().Price
	default:
		return 0
	}

	if ref == 0 {
		return 0
	}
	return (last - ref) / ref * 100
}

// consecutivePositiveDays counts, backward from the most recent
// calendar day, how many days in a row closed above their open.
func consecutivePositiveDays(s series.Series) int {
	if s.Empty() {
		return 0
	}

	type dayRange struct {
		first float64
		last  float64
	}

	var (
		days    []dayRange
		curDate string
	)
	for _, sample := range s.Samples {
		date := sample.Timestamp.Format("2006-01-02")
		if date != curDate {
			curDate = date
			days = append(days, dayRange{first: sample.Price, last: sample.Price})
		} else {
			days[len(days)-1].last = sample.Price
		}
	}

	count := 0
	for i := len(days) - 1; i >= 0; i-- {
		if days[i].first == 0 || days[i].last-days[i].first <= 0 {
			break
		}
		count++
	}
	return count
}
