package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/marketview/seriesd/internal/analytics"
	"github.com/marketview/seriesd/internal/cache"
	"github.com/marketview/seriesd/internal/series"
)

const timestampFormat = "2006-01-02 15:04:05"

// dataResponse is the chart payload for one symbol. Cumulative
// returns are percent-scaled.
type dataResponse struct {
	Timestamps                []string                `json:"timestamps"`
	Prices                    []float64               `json:"prices"`
	Positions                 []float64               `json:"positions"`
	CumulativeReturns         []float64               `json:"cumulative_returns"`
	CumulativeReturnsAfterFee []float64               `json:"cumulative_returns_after_fees"`
	Metrics                   analytics.SeriesMetrics `json:"metrics"`
	Bucket                    string                  `json:"bucket"`
	Symbol                    string                  `json:"symbol"`
	DataSource                string                  `json:"data_source"`
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bucket, symbol := vars["bucket"], vars["symbol"]

	sym, err := s.disc.Resolve(bucket, symbol)
	if err != nil {
		s.writeError(w, err)
		return
	}

	key := cache.Key{Bucket: bucket, SeriesID: sym.SeriesID()}
	entry, ok := s.cache.RefreshIfStale(key, cache.Source{Path: sym.Path, ModTime: sym.ModTime})
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load data"})
		return
	}

	display := entry.Series
	switch r.URL.Query().Get("resolution") {
	case "minutely":
		// Full resolution, no resampling.
	case "auto":
		display = analytics.Resample(display, 0)
	default: // hourly
		display = analytics.Resample(display, time.Hour)
	}

	resp := dataResponse{
		Timestamps:                make([]string, 0, display.Len()),
		Prices:                    make([]float64, 0, display.Len()),
		Positions:                 make([]float64, 0, display.Len()),
		CumulativeReturns:         make([]float64, 0, display.Len()),
		CumulativeReturnsAfterFee: make([]float64, 0, display.Len()),
		Metrics:                   analytics.Metrics(entry.Series),
		Bucket:                    bucket,
		Symbol:                    symbol,
		DataSource:                "csv_strategy",
	}
	for _, sample := range display.Samples {
		resp.Timestamps = append(resp.Timestamps, sample.Timestamp.Format(timestampFormat))
		resp.Prices = append(resp.Prices, sample.Price)
		resp.Positions = append(resp.Positions, sample.Position)
		resp.CumulativeReturns = append(resp.CumulativeReturns, sample.CumulativeReturn*100)
		resp.CumulativeReturnsAfterFee = append(resp.CumulativeReturnsAfterFee, sample.CumulativeReturnAfterFees*100)
	}

	writeJSON(w, http.StatusOK, resp)
}

// sinceResponse is the incremental payload for a watermark fetch.
type sinceResponse struct {
	NewData           bool      `json:"new_data"`
	Timestamps        []string  `json:"timestamps,omitempty"`
	Prices            []float64 `json:"prices,omitempty"`
	Positions         []float64 `json:"positions,omitempty"`
	CumulativeReturns []float64 `json:"cumulative_returns,omitempty"`
}

func (s *Server) handleDataSince(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bucket, symbol := vars["bucket"], vars["symbol"]

	watermark, err := series.ParseTimestamp(vars["watermark"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid watermark timestamp"})
		return
	}

	sym, err := s.disc.Resolve(bucket, symbol)
	if err != nil {
		s.writeError(w, err)
		return
	}

	key := cache.Key{Bucket: bucket, SeriesID: sym.SeriesID()}
	tail, hasNew, found := s.cache.Since(key, watermark)
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "symbol not cached"})
		return
	}
	if !hasNew {
		writeJSON(w, http.StatusOK, sinceResponse{NewData: false})
		return
	}

	resp := sinceResponse{
		NewData:           true,
		Timestamps:        make([]string, 0, tail.Len()),
		Prices:            make([]float64, 0, tail.Len()),
		Positions:         make([]float64, 0, tail.Len()),
		CumulativeReturns: make([]float64, 0, tail.Len()),
	}
	for _, sample := range tail.Samples {
		resp.Timestamps = append(resp.Timestamps, sample.Timestamp.Format(timestampFormat))
		resp.Prices = append(resp.Prices, sample.Price)
		resp.Positions = append(resp.Positions, sample.Position)
		resp.CumulativeReturns = append(resp.CumulativeReturns, sample.CumulativeReturn*100)
	}
	writeJSON(w, http.StatusOK, resp)
}
