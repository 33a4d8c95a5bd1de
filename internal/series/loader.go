package series

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Loader reads source CSV files into normalized series. Producers
// write two schema variants (canonical lowercase and legacy
// capitalized names); both map onto the same internal schema.
type Loader struct {
	logger *logrus.Entry
}

// NewLoader creates a series loader.
func NewLoader() *Loader {
	return &Loader{
		logger: logrus.WithField("component", "series-loader"),
	}
}

// schema maps resolved column indices in the source header to the
// internal schema. -1 means the column is absent.
type schema struct {
	timestamp int
	price     int
	position  int

	ret           int
	positionLag   int
	strategyRet   int
	cumulative    int
	cumulativeFee int
	txCost        int
}

// Load reads one source file into an ordered series. A missing,
// empty, or unparseable file yields an empty series, never an error:
// callers treat "no usable data" as a soft condition and must not
// replace a previously good cache entry with it.
func (l *Loader) Load(path string) Series {
	f, err := os.Open(path)
	if err != nil {
		l.logger.WithField("path", path).Warnf("source file not readable: %v", err)
		return Series{}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		l.logger.WithField("path", path).Warnf("failed to read header: %v", err)
		return Series{}
	}

	sc, ok := resolveSchema(header)
	if !ok {
		l.logger.WithField("path", path).Warn("unrecognized column layout")
		return Series{}
	}

	var samples []Sample
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Skip malformed rows but keep reading; a torn tail is
			// expected while the producer appends.
			continue
		}

		ts, err := ParseTimestamp(field(record, sc.timestamp))
		if err != nil {
			continue
		}

		s := Sample{
			Timestamp: ts,
			Price:     parseFloat(field(record, sc.price)),
			Position:  parseFloat(field(record, sc.position)),
		}
		if sc.cumulative >= 0 {
			s.Return = parseFloat(field(record, sc.ret))
			s.PositionLag = parseFloat(field(record, sc.positionLag))
			s.StrategyReturn = parseFloat(field(record, sc.strategyRet))
			s.CumulativeReturn = parseFloat(field(record, sc.cumulative))
			s.CumulativeReturnAfterFees = parseFloat(field(record, sc.cumulativeFee))
			s.TransactionCost = parseFloat(field(record, sc.txCost))
		}
		samples = append(samples, s)
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	out := Series{Samples: samples, HasDerived: sc.cumulative >= 0}
	l.logger.WithFields(logrus.Fields{
		"path": path,
		"rows": len(samples),
	}).Debug("loaded series")
	return out
}

// resolveSchema maps the two known header variants onto the internal
// schema. An unknown layout is a load failure, not a guess.
func resolveSchema(header []string) (schema, bool) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}

	find := func(names ...string) int {
		for _, n := range names {
			if i, ok := idx[n]; ok {
				return i
			}
		}
		return -1
	}

	sc := schema{
		timestamp:     find("Close time", "datetime", "timestamp"),
		price:         find("Close", "close"),
		position:      find("Position", "position"),
		ret:           find("returns"),
		positionLag:   find("position_lag"),
		strategyRet:   find("strategy_returns"),
		cumulative:    find("cumulative_return"),
		cumulativeFee: find("cumulative_return_after_fees"),
		txCost:        find("transaction_cost"),
	}
	if sc.timestamp < 0 || sc.price < 0 || sc.position < 0 {
		return schema{}, false
	}
	return sc, true
}

// timestampLayouts are the encodings the producers have been observed
// to emit for the same logical timestamp.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses any of the accepted timestamp encodings.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	// Bare epoch seconds or milliseconds.
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, lastErr
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

// parseFloat substitutes 0 for anything unusable; a single malformed
// cell never aborts a load.
func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
