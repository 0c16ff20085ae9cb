package interactions

import (
	"context"
	"testing"
	"time"

	"world-pulse-map/pkg/eventbus"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	m, err := LoadManifest([]byte(`{
		"categories": {"TRADE": ["AGREEMENT", "SANCTION"], "DIPLOMACY": ["SUMMIT"]},
		"interactions": [
			{"id": "t1", "category": "TRADE", "subtype": "AGREEMENT",
			 "title": "Grain corridor deal", "summary": "Export agreement renewal",
			 "countries": ["UKR", "TUR"]},
			{"id": "d1", "category": "DIPLOMACY", "subtype": "SUMMIT",
			 "title": "Border talks", "countries": ["IND"]}
		]
	}`))
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	coords, err := LoadCoords([]byte(`{
		"UKR": {"lat": 50.45, "lng": 30.52},
		"TUR": {"lat": 39.93, "lng": 32.86},
		"IND": {"lat": 28.61, "lng": 77.21}
	}`))
	if err != nil {
		t.Fatalf("coords: %v", err)
	}
	return NewRegistry(m, coords, eventbus.NewBus(), t.Logf)
}

func TestRenderCategoryArcsAndDots(t *testing.T) {
	ctx := context.Background()
	r := testRegistry(t)

	ov := r.RenderCategory(ctx, "trade", "")
	if ov.Hidden {
		t.Fatal("world-level overlay should be visible")
	}
	if len(ov.Arcs) != 1 {
		t.Fatalf("arcs = %d, want 1 for a two-party interaction", len(ov.Arcs))
	}
	if got := len(ov.Arcs[0].Points); got != 21 {
		t.Errorf("arc samples = %d, want 21", got)
	}
	if len(ov.Dots) != 2 {
		t.Errorf("dots = %d, want one per participant", len(ov.Dots))
	}

	ov = r.RenderCategory(ctx, "DIPLOMACY", "")
	if len(ov.Arcs) != 0 || len(ov.Dots) != 1 {
		t.Errorf("single-party overlay = %d arcs %d dots, want 0/1", len(ov.Arcs), len(ov.Dots))
	}
}

func TestMultiPartyInteractionConnectsEveryPair(t *testing.T) {
	ctx := context.Background()
	r := testRegistry(t)

	r.Upsert(ctx, Interaction{
		ID: "t2", Category: "TRADE", Title: "Black Sea accord",
		Countries: []string{"UKR", "TUR", "IND"},
	})
	ov := r.RenderCategory(ctx, "TRADE", "")

	var arcs int
	for _, arc := range ov.Arcs {
		if arc.ID == "t2" {
			arcs++
		}
	}
	if arcs != 3 {
		t.Errorf("three-party arcs = %d, want 3 (every pair, including the closing one)", arcs)
	}
}

func TestSubtypeNarrowsOverlay(t *testing.T) {
	ctx := context.Background()
	r := testRegistry(t)

	r.Upsert(ctx, Interaction{
		ID: "t3", Category: "TRADE", Subtype: "SANCTION",
		Title: "Steel tariff", Countries: []string{"UKR", "IND"},
	})

	ov := r.RenderCategory(ctx, "TRADE", "sanction")
	if len(ov.Arcs) != 1 || ov.Arcs[0].ID != "t3" {
		t.Fatalf("sanction overlay arcs = %+v, want only t3", ov.Arcs)
	}
	if ov = r.RenderCategory(ctx, "TRADE", ""); len(ov.Arcs) != 2 {
		t.Errorf("unfiltered overlay arcs = %d, want both trade interactions", len(ov.Arcs))
	}
}

func TestPointInteractionRendersLocationDot(t *testing.T) {
	ctx := context.Background()
	r := testRegistry(t)

	r.Upsert(ctx, Interaction{
		ID: "d2", Category: "DIPLOMACY", Title: "Observer mission",
		Location: &Coord{Lat: 46.2, Lng: 6.14},
	})
	ov := r.RenderCategory(ctx, "DIPLOMACY", "")

	var found bool
	for _, dot := range ov.Dots {
		if dot.ID == "d2" {
			found = true
			if dot.Lat != 46.2 || dot.Lon != 6.14 {
				t.Errorf("location dot at %f,%f, want 46.2,6.14", dot.Lat, dot.Lon)
			}
		}
	}
	if !found {
		t.Error("explicit-location interaction produced no dot")
	}
	for _, arc := range ov.Arcs {
		if arc.ID == "d2" {
			t.Error("point interaction should not draw arcs")
		}
	}
}

func TestLookupAndSearch(t *testing.T) {
	ctx := context.Background()
	r := testRegistry(t)

	if in, ok := r.Get(ctx, "t1"); !ok || in.Title != "Grain corridor deal" {
		t.Errorf("Get(t1) = %+v %v", in, ok)
	}
	if _, ok := r.Get(ctx, "missing"); ok {
		t.Error("Get(missing) should fail")
	}

	hits := r.FindByText(ctx, "corridor")
	if len(hits) != 1 || hits[0].ID != "t1" {
		t.Errorf("FindByText(corridor) = %+v, want t1", hits)
	}
	if got := r.FindByText(ctx, ""); len(got) != 2 {
		t.Errorf("empty query hits = %d, want all 2", len(got))
	}
}

func TestUpsertMintsID(t *testing.T) {
	ctx := context.Background()
	r := testRegistry(t)

	in := r.Upsert(ctx, Interaction{Category: "trade", Title: "Pipeline memo", Countries: []string{"TUR"}})
	if in.ID == "" {
		t.Fatal("Upsert should mint an id")
	}
	if in.Category != "TRADE" {
		t.Errorf("category = %q, want upper-cased TRADE", in.Category)
	}
	if got, ok := r.Get(ctx, in.ID); !ok || got.Title != "Pipeline memo" {
		t.Errorf("round trip = %+v %v", got, ok)
	}
}

func TestOverlayHiddenBelowWorldLevel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := testRegistry(t)
	go r.Run(ctx)

	// Republish until the subscription is live and the update has been
	// absorbed; bus delivery is asynchronous.
	for i := 0; i < 100; i++ {
		r.bus.PublishLevel(eventbus.LevelChange{Level: 1})
		time.Sleep(2 * time.Millisecond)
		if ov := r.RenderCategory(ctx, "TRADE", ""); ov.Hidden {
			if len(ov.Arcs) != 0 {
				t.Fatalf("hidden overlay still carries %d arcs", len(ov.Arcs))
			}
			return
		}
	}
	t.Fatal("overlay never hid after level change")
}
