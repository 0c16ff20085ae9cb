// Package boundaries downloads administrative boundary polygons as
// GeoJSON and caches them so repeat navigation never refetches.
// "Don't communicate by sharing memory, share memory by
// communicating" guides the callers; this package itself is a plain
// fetch-and-decode layer safe for concurrent use because every call
// works on its own data.
package boundaries

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"world-pulse-map/pkg/logger"
)

// Level numbering follows common usage: 0 world, 1 states of a
// country (ADM1), 2 districts of a state (ADM2).
const (
	LevelWorld = 0
	LevelADM1  = 1
	LevelADM2  = 2
)

// CountrySource lists where to download a country's subdivisions.
type CountrySource struct {
	ADM1 string `json:"adm1"`
	ADM2 string `json:"adm2"`
}

// Cache stores raw GeoJSON payloads keyed by URL.  The database layer
// implements it; tests use an in-memory map.
type Cache interface {
	GetBoundary(ctx context.Context, url string) ([]byte, bool, error)
	PutBoundary(ctx context.Context, url string, payload []byte) error
}

// Source fetches boundary collections through an HTTP client with a
// write-through cache in front.
type Source struct {
	client    *http.Client
	cache     Cache
	countries map[string]CountrySource
	world     string
	logf      func(format string, args ...any)
}

// NewSource builds a Source.  cache and logf may be nil.
func NewSource(worldURL string, countries map[string]CountrySource, cache Cache, logf func(string, ...any)) *Source {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Source{
		client:    &http.Client{Timeout: 45 * time.Second},
		cache:     cache,
		countries: countries,
		world:     worldURL,
		logf:      logf,
	}
}

// URLFor resolves the download URL for a drill target.  ok is false
// when no dataset covers the requested country or level.
func (s *Source) URLFor(level int, iso string) (string, bool) {
	switch level {
	case LevelWorld:
		return s.world, s.world != ""
	case LevelADM1:
		src, ok := s.countries[iso]
		return src.ADM1, ok && src.ADM1 != ""
	case LevelADM2:
		src, ok := s.countries[iso]
		return src.ADM2, ok && src.ADM2 != ""
	}
	return "", false
}

// HasADM2 reports whether drilling below state level is possible for a
// country.
func (s *Source) HasADM2(iso string) bool {
	_, ok := s.URLFor(LevelADM2, iso)
	return ok
}

// Fetch returns the feature collection at url, serving from the cache
// when possible and storing fresh downloads back into it.
func (s *Source) Fetch(ctx context.Context, url string) (*geojson.FeatureCollection, error) {
	if s.cache != nil {
		payload, ok, err := s.cache.GetBoundary(ctx, url)
		if err != nil {
			s.logf("boundary cache read %s: %v", url, err)
		} else if ok {
			fc, err := geojson.UnmarshalFeatureCollection(payload)
			if err == nil {
				return fc, nil
			}
			s.logf("boundary cache decode %s: %v", url, err)
		}
	}

	// Cache miss: buffer the download details and replay them only
	// if the fetch fails, so routine navigation stays quiet.
	reqID := requestID(url)
	logger.Begin(reqID)
	payload, err := s.download(ctx, reqID, url)
	if err != nil {
		logger.FlushError(reqID, err)
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(payload)
	if err != nil {
		logger.FlushError(reqID, fmt.Errorf("boundary decode %s: %w", url, err))
		return nil, fmt.Errorf("boundary decode %s: %w", url, err)
	}
	if s.cache != nil {
		if err := s.cache.PutBoundary(ctx, url, payload); err != nil {
			s.logf("boundary cache write %s: %v", url, err)
		}
	}
	logger.Success(reqID, url)
	return fc, nil
}

// requestID derives a short stable tag from the URL tail so log lines
// of one download group together.
func requestID(url string) string {
	tail := url
	if i := strings.LastIndexByte(tail, '/'); i >= 0 && i+1 < len(tail) {
		tail = tail[i+1:]
	}
	if len(tail) > 6 {
		tail = tail[:6]
	}
	return tail
}

func (s *Source) download(ctx context.Context, reqID, url string) ([]byte, error) {
	logger.Append(reqID, fmt.Sprintf("[%-6s][Fetch] GET %s", reqID, url))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "world-pulse-map boundary fetcher")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("boundary request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("boundary http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("boundary read: %w", err)
	}
	logger.Append(reqID, fmt.Sprintf("[%-6s][Fetch] %d bytes", reqID, len(payload)))
	if !json.Valid(payload) {
		return nil, fmt.Errorf("boundary payload %s is not JSON", url)
	}
	return payload, nil
}

// LoadCountrySources decodes the embedded registry: the world dataset
// URL plus per-country subdivision URLs.
func LoadCountrySources(data []byte) (string, map[string]CountrySource, error) {
	var reg struct {
		World     string                   `json:"world"`
		Countries map[string]CountrySource `json:"countries"`
	}
	if err := json.Unmarshal(data, &reg); err != nil {
		return "", nil, fmt.Errorf("country sources: %w", err)
	}
	return reg.World, reg.Countries, nil
}
