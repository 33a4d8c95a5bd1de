package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketview/seriesd/internal/analytics"
	"github.com/marketview/seriesd/internal/cache"
	"github.com/marketview/seriesd/internal/discovery"
	"github.com/marketview/seriesd/internal/series"
	"github.com/marketview/seriesd/internal/summary"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "alpha")
	require.NoError(t, os.MkdirAll(dir, 0755))

	var b strings.Builder
	b.WriteString("timestamp,close,position\n")
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	prices := []float64{100, 110, 121}
	for i, p := range prices {
		fmt.Fprintf(&b, "%s,%g,1\n", base.Add(time.Duration(i)*time.Minute).Format("2006-01-02 15:04:05"), p)
	}
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "STGC2OGTrim2Model_TS-1_T-1_x.csv"), []byte(b.String()), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "TS-1.json"),
		[]byte(`{"hedge_symbol":"BTC-USD-SWAP"}`), 0644))

	disc := discovery.NewService(root)
	manager := cache.NewManager(series.NewLoader(), analytics.NewEngine(0))
	agg := summary.New(disc, manager, 2)
	srv := httptest.NewServer(New(disc, manager, agg, []string{"alpha"}).Router())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestDataEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var resp struct {
		Timestamps        []string  `json:"timestamps"`
		Prices            []float64 `json:"prices"`
		CumulativeReturns []float64 `json:"cumulative_returns"`
		Metrics           struct {
			LastPrice   float64 `json:"last_price"`
			TotalPoints int     `json:"total_points"`
		} `json:"metrics"`
	}

	// Default hourly resolution folds three minute samples into one
	// bucket; metrics still reflect the full series.
	code := getJSON(t, srv.URL+"/api/data/alpha/BTC", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Prices, 1)
	assert.Equal(t, 121.0, resp.Metrics.LastPrice)
	assert.Equal(t, 3, resp.Metrics.TotalPoints)
	assert.InDelta(t, 21.0, resp.CumulativeReturns[0], 1e-9)

	code = getJSON(t, srv.URL+"/api/data/alpha/TS-1?resolution=minutely", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Prices, 3)
}

func TestDataEndpointNotFound(t *testing.T) {
	srv := newTestServer(t)

	var errResp map[string]string
	assert.Equal(t, http.StatusNotFound,
		getJSON(t, srv.URL+"/api/data/alpha/DOGE", &errResp))
	assert.Equal(t, http.StatusNotFound,
		getJSON(t, srv.URL+"/api/data/missing/BTC", &errResp))
}

func TestSinceEndpoint(t *testing.T) {
	srv := newTestServer(t)

	// Populate the cache first; the incremental endpoint is a pure
	// read.
	var ignore map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/data/alpha/BTC", &ignore))

	var resp struct {
		NewData bool      `json:"new_data"`
		Prices  []float64 `json:"prices"`
	}

	code := getJSON(t, srv.URL+"/api/data/alpha/BTC/since/2025-06-01T00:01:00", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.NewData)
	assert.Equal(t, []float64{121}, resp.Prices)

	// Watermark at the last sample: nothing new.
	code = getJSON(t, srv.URL+"/api/data/alpha/BTC/since/2025-06-01T00:02:00", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, resp.NewData)

	var errResp map[string]string
	assert.Equal(t, http.StatusBadRequest,
		getJSON(t, srv.URL+"/api/data/alpha/BTC/since/garbage", &errResp))
}

func TestBucketsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var buckets []struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/buckets", &buckets))
	require.Len(t, buckets, 1)
	assert.Equal(t, "alpha", buckets[0].Name)
	assert.Equal(t, "Alpha", buckets[0].DisplayName)
}

func TestBucketSymbolsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var symbols []struct {
		Symbol string `json:"symbol"`
		TSID   string `json:"ts_id"`
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/buckets/alpha/symbols", &symbols))
	require.Len(t, symbols, 1)
	assert.Equal(t, "BTC", symbols[0].Symbol)
	assert.Equal(t, "1", symbols[0].TSID)
	assert.Equal(t, "fresh", symbols[0].Status)

	var errResp map[string]string
	assert.Equal(t, http.StatusNotFound,
		getJSON(t, srv.URL+"/api/buckets/missing/symbols", &errResp))
}

func TestSummaryEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var resp struct {
		Symbols []struct {
			Symbol   string `json:"symbol"`
			Position string `json:"position"`
		} `json:"symbols"`
		Stats struct {
			TotalSymbols int `json:"total_symbols"`
		} `json:"stats"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/symbols/summary", &resp))
	require.Len(t, resp.Symbols, 1)
	assert.Equal(t, "BTC", resp.Symbols[0].Symbol)
	assert.Equal(t, "LONG", resp.Symbols[0].Position)
	assert.Equal(t, 1, resp.Stats.TotalSymbols)
}

func TestDataVersionEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var v1 struct {
		Version    uint64 `json:"version"`
		LastUpdate string `json:"last_update"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/data/version", &v1))
	assert.GreaterOrEqual(t, v1.Version, uint64(1))

	// Loading a series bumps the version.
	var ignore map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/data/alpha/BTC", &ignore))

	var v2 struct {
		Version uint64 `json:"version"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/data/version", &v2))
	assert.Greater(t, v2.Version, v1.Version)
}
