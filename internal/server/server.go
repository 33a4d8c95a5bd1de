// Package server exposes the analytics cache over HTTP. Routes and
// payload shapes follow the dashboard API the frontends already
// speak.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/marketview/seriesd/internal/cache"
	"github.com/marketview/seriesd/internal/discovery"
	"github.com/marketview/seriesd/internal/summary"
)

// Server wires discovery, the series cache, and the summary
// aggregator to HTTP handlers.
type Server struct {
	disc    *discovery.Service
	cache   *cache.Manager
	agg     *summary.Aggregator
	buckets []string
	logger  *logrus.Entry
}

// New creates a server. buckets is the configured bucket list used by
// the cross-bucket endpoints.
func New(disc *discovery.Service, c *cache.Manager, agg *summary.Aggregator, buckets []string) *Server {
	return &Server{
		disc:    disc,
		cache:   c,
		agg:     agg,
		buckets: buckets,
		logger:  logrus.WithField("component", "http-server"),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/buckets", s.handleBuckets).Methods(http.MethodGet)
	api.HandleFunc("/buckets/{bucket}/symbols", s.handleBucketSymbols).Methods(http.MethodGet)
	api.HandleFunc("/symbols", s.handleSymbols).Methods(http.MethodGet)
	api.HandleFunc("/symbols/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/cumulative_returns/all", s.handleAllReturns).Methods(http.MethodGet)
	api.HandleFunc("/data/version", s.handleDataVersion).Methods(http.MethodGet)
	api.HandleFunc("/data/{bucket}/{symbol}", s.handleData).Methods(http.MethodGet)
	api.HandleFunc("/data/{bucket}/{symbol}/since/{watermark}", s.handleDataSince).Methods(http.MethodGet)

	return r
}

func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.disc.Buckets()
	if err != nil {
		s.logger.Errorf("failed to list buckets: %v", err)
		writeJSON(w, http.StatusOK, []discovery.Bucket{})
		return
	}

	type bucketDTO struct {
		Name        string `json:"name"`
		Path        string `json:"path"`
		DisplayName string `json:"display_name"`
	}
	out := make([]bucketDTO, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, bucketDTO{Name: b.Name, Path: b.Name, DisplayName: b.DisplayName})
	}
	writeJSON(w, http.StatusOK, out)
}

type symbolDTO struct {
	Symbol       string  `json:"symbol"`
	DisplayName  string  `json:"display_name"`
	Pair         string  `json:"pair"`
	TSID         string  `json:"ts_id"`
	TID          string  `json:"t_id"`
	Bucket       string  `json:"bucket"`
	Filename     string  `json:"filename"`
	SizeMB       float64 `json:"size_mb"`
	LastModified string  `json:"last_modified"`
	HoursOld     float64 `json:"hours_old"`
	Status       string  `json:"status"`
}

func toSymbolDTO(sym discovery.Symbol) symbolDTO {
	return symbolDTO{
		Symbol:       sym.Symbol,
		DisplayName:  sym.DisplayName,
		Pair:         sym.Pair,
		TSID:         sym.TSID,
		TID:          sym.TID,
		Bucket:       sym.Bucket,
		Filename:     sym.Filename,
		SizeMB:       sym.SizeMB,
		LastModified: sym.ModTime.Format(time.RFC3339),
		HoursOld:     sym.HoursOld,
		Status:       sym.Freshness,
	}
}

func (s *Server) handleBucketSymbols(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]

	symbols, err := s.disc.Symbols(bucket)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]symbolDTO, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, toSymbolDTO(sym))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	grouped := make(map[string][]symbolDTO)
	names := make([]string, 0)

	for _, bucket := range s.buckets {
		symbols, err := s.disc.Symbols(bucket)
		if err != nil {
			s.logger.Warnf("skipping bucket %s: %v", bucket, err)
			continue
		}
		for _, sym := range symbols {
			if _, seen := grouped[sym.Symbol]; !seen {
				names = append(names, sym.Symbol)
			}
			grouped[sym.Symbol] = append(grouped[sym.Symbol], toSymbolDTO(sym))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols":  names,
		"detailed": grouped,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Summarize(s.buckets))
}

func (s *Server) handleAllReturns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols":   s.agg.AllReturns(s.buckets),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDataVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":     s.cache.DataVersion(),
		"last_update": s.cache.LastUpdate().Format(time.RFC3339),
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, discovery.ErrBucketNotFound) || errors.Is(err, discovery.ErrSymbolNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
