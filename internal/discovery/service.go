// Package discovery resolves buckets and symbols from the data root:
// it matches producer filename patterns, reads the per-series JSON
// metadata for display names, and classifies file freshness. The
// producer syncs files in place, so directory listings are retried
// briefly before degrading to an empty result.
package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// seriesFilePattern matches the producer's output files. Placeholder
// files (_PH.csv) are skipped separately.
var seriesFilePattern = regexp.MustCompile(`^STGC2OGTrim2Model_TS-(\d+)_T-(\d+)_.*\.csv$`)

const (
	listRetries    = 3
	listRetryPause = 100 * time.Millisecond

	freshLimit = 1.167 // hours; one sync interval plus slack
	staleLimit = 2.167
)

var titleCaser = cases.Title(language.English)

// Bucket is one directory under the data root.
type Bucket struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Symbol describes one discovered series file.
type Symbol struct {
	Bucket      string    `json:"bucket"`
	TSID        string    `json:"ts_id"`
	TID         string    `json:"t_id"`
	Symbol      string    `json:"symbol"`
	Pair        string    `json:"pair"`
	DisplayName string    `json:"display_name"`
	Filename    string    `json:"filename"`
	Path        string    `json:"-"`
	ModTime     time.Time `json:"-"`
	SizeMB      float64   `json:"size_mb"`
	HoursOld    float64   `json:"hours_old"`
	Freshness   string    `json:"status"`
}

// SeriesID returns the canonical cache identifier for the symbol.
func (s Symbol) SeriesID() string { return "TS-" + s.TSID }

// metadata mirrors the producer's TS-{id}.json sidecar. The hedge
// symbol usually lives inside the first model's args; older files
// carry it at the top level.
type metadata struct {
	HedgeSymbol string `json:"hedge_symbol"`
	Models      []struct {
		Args struct {
			HedgeSymbol string `json:"hedge_symbol"`
		} `json:"args"`
	} `json:"models"`
}

// Service discovers buckets and symbols under a data root directory.
type Service struct {
	root   string
	logger *logrus.Entry
}

// NewService creates a discovery service rooted at dir.
func NewService(root string) *Service {
	return &Service{
		root:   root,
		logger: logrus.WithField("component", "discovery"),
	}
}

// Root returns the data root directory.
func (s *Service) Root() string { return s.root }

// Buckets lists all bucket directories under the root.
func (s *Service) Buckets() ([]Bucket, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list data root %s: %w", s.root, err)
	}

	var buckets []Bucket
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		buckets = append(buckets, Bucket{
			Name:        entry.Name(),
			DisplayName: DisplayName(entry.Name()),
		})
	}
	return buckets, nil
}

// Symbols lists all series files in a bucket, sorted by symbol name.
// Returns ErrBucketNotFound when the bucket directory does not exist;
// a transient listing failure degrades to an empty result.
func (s *Service) Symbols(bucket string) ([]Symbol, error) {
	bucketPath := filepath.Join(s.root, bucket)
	if _, err := os.Stat(bucketPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}

	names, ok := s.listDir(bucketPath)
	if !ok {
		return nil, nil
	}

	now := time.Now()
	var symbols []Symbol
	for _, name := range names {
		if !strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, "_PH.csv") {
			continue
		}
		match := seriesFilePattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}

		path := filepath.Join(bucketPath, name)
		info, err := os.Stat(path)
		if err != nil {
			// The producer may have replaced the file mid-listing.
			continue
		}

		sym := Symbol{
			Bucket:   bucket,
			TSID:     match[1],
			TID:      match[2],
			Filename: name,
			Path:     path,
			ModTime:  info.ModTime(),
			SizeMB:   float64(info.Size()) / (1024 * 1024),
		}
		sym.HoursOld = now.Sub(info.ModTime()).Hours()
		sym.Freshness = classifyFreshness(sym.HoursOld)

		base, pair := s.symbolName(bucketPath, sym.TSID)
		sym.Symbol = base
		sym.Pair = pair
		sym.DisplayName = base
		if pair != "" {
			sym.DisplayName = fmt.Sprintf("%s (%s)", base, pair)
		}

		symbols = append(symbols, sym)
	}

	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].Symbol != symbols[j].Symbol {
			return symbols[i].Symbol < symbols[j].Symbol
		}
		return symbols[i].TSID < symbols[j].TSID
	})
	return symbols, nil
}

// Resolve finds one symbol in a bucket by series id ("TS-3" or "3")
// or by base symbol name ("BTC").
func (s *Service) Resolve(bucket, symbolOrID string) (Symbol, error) {
	symbols, err := s.Symbols(bucket)
	if err != nil {
		return Symbol{}, err
	}

	tsID := symbolOrID
	if strings.HasPrefix(symbolOrID, "TS-") {
		tsID = strings.TrimPrefix(symbolOrID, "TS-")
	}
	byID := isDigits(tsID)

	for _, sym := range symbols {
		if byID && sym.TSID == tsID {
			return sym, nil
		}
		if !byID && sym.Symbol == symbolOrID {
			return sym, nil
		}
	}
	return Symbol{}, fmt.Errorf("%w: %s in bucket %s", ErrSymbolNotFound, symbolOrID, bucket)
}

// listDir reads a directory with bounded retry. The external producer
// replaces files in place and a listing can race with it.
func (s *Service) listDir(path string) ([]string, bool) {
	var lastErr error
	for attempt := 0; attempt < listRetries; attempt++ {
		entries, err := os.ReadDir(path)
		if err == nil {
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			return names, true
		}
		lastErr = err
		time.Sleep(listRetryPause)
	}
	s.logger.WithField("path", path).Warnf("failed to list directory after %d attempts: %v", listRetries, lastErr)
	return nil, false
}

// symbolName resolves the base/quote pair for a series from its JSON
// sidecar, e.g. hedge_symbol "BTC-USD-SWAP" yields ("BTC", "USD").
func (s *Service) symbolName(bucketPath, tsID string) (base, pair string) {
	raw, err := os.ReadFile(filepath.Join(bucketPath, "TS-"+tsID+".json"))
	if err != nil {
		return "Unknown-" + tsID, ""
	}

	var md metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		s.logger.Warnf("could not read metadata for TS-%s: %v", tsID, err)
		return "Unknown-" + tsID, ""
	}

	hedge := md.HedgeSymbol
	if len(md.Models) > 0 && md.Models[0].Args.HedgeSymbol != "" {
		hedge = md.Models[0].Args.HedgeSymbol
	}
	if hedge == "" {
		return "Unknown-" + tsID, ""
	}

	parts := strings.Split(hedge, "-")
	if len(parts) >= 2 {
		return parts[0], parts[1]
	}
	return hedge, ""
}

func classifyFreshness(hoursOld float64) string {
	switch {
	case hoursOld <= freshLimit:
		return "fresh"
	case hoursOld <= staleLimit:
		return "stale"
	default:
		return "very_stale"
	}
}

// DisplayName renders a bucket directory name for the UI.
func DisplayName(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
