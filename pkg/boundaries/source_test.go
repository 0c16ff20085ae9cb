package boundaries

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb/geojson"
)

type memCache struct {
	data map[string][]byte
}

func (m *memCache) GetBoundary(_ context.Context, url string) ([]byte, bool, error) {
	payload, ok := m.data[url]
	return payload, ok, nil
}

func (m *memCache) PutBoundary(_ context.Context, url string, payload []byte) error {
	m.data[url] = payload
	return nil
}

const sampleFC = `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"shapeName":"Maharashtra","shapeISO":"IN-MH","shapeGroup":"IND"},"geometry":{"type":"Polygon","coordinates":[[[72,18],[78,18],[78,22],[72,22],[72,18]]]}}]}`

func TestFetchCachesDownloads(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(sampleFC))
	}))
	defer srv.Close()

	cache := &memCache{data: map[string][]byte{}}
	src := NewSource(srv.URL, nil, cache, nil)

	for i := 0; i < 2; i++ {
		fc, err := src.Fetch(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if len(fc.Features) != 1 {
			t.Fatalf("fetch %d: %d features, want 1", i, len(fc.Features))
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1 (second fetch should use cache)", got)
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewSource(srv.URL, nil, nil, nil)
	if _, err := src.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestURLFor(t *testing.T) {
	src := NewSource("https://example.com/world.json", map[string]CountrySource{
		"IND": {ADM1: "https://example.com/ind-adm1.json", ADM2: "https://example.com/ind-adm2.json"},
		"MCO": {ADM1: "https://example.com/mco-adm1.json"},
	}, nil, nil)

	tests := []struct {
		level  int
		iso    string
		wantOK bool
	}{
		{LevelWorld, "", true},
		{LevelADM1, "IND", true},
		{LevelADM2, "IND", true},
		{LevelADM2, "MCO", false},
		{LevelADM1, "ZZZ", false},
		{3, "IND", false},
	}
	for _, tc := range tests {
		if _, ok := src.URLFor(tc.level, tc.iso); ok != tc.wantOK {
			t.Errorf("URLFor(%d, %q) ok = %v, want %v", tc.level, tc.iso, ok, tc.wantOK)
		}
	}
	if !src.HasADM2("IND") || src.HasADM2("MCO") {
		t.Error("HasADM2 disagrees with registry")
	}
}

func TestPropertyAccessors(t *testing.T) {
	fc, err := geojson.UnmarshalFeatureCollection([]byte(sampleFC))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	f := fc.Features[0]
	if got := DisplayName(f); got != "Maharashtra" {
		t.Errorf("DisplayName = %q, want Maharashtra", got)
	}
	if got := ISOCode(f, "XX"); got != "IND" {
		t.Errorf("ISOCode = %q, want IND", got)
	}
	if got := StateCode(f); got != "IN-MH" {
		t.Errorf("StateCode = %q, want IN-MH", got)
	}

	f.Properties["shapeGroup"] = "-99"
	f.Properties["ADM0_A3"] = "FRA"
	if got := ISOCode(f, "XX"); got != "FRA" {
		t.Errorf("ISOCode with -99 sentinel = %q, want FRA", got)
	}

	bare := geojson.NewFeature(nil)
	if got := DisplayName(bare); got != "Unknown" {
		t.Errorf("DisplayName bare = %q, want Unknown", got)
	}
	if got := ISOCode(bare, "ZZ"); got != "ZZ" {
		t.Errorf("ISOCode bare = %q, want fallback ZZ", got)
	}
}
