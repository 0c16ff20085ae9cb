package navigation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"world-pulse-map/pkg/boundaries"
	"world-pulse-map/pkg/capitals"
	"world-pulse-map/pkg/eventbus"
	"world-pulse-map/pkg/render"
)

const worldFC = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"ADMIN":"India","ISO_A3":"IND"},
	 "geometry":{"type":"Polygon","coordinates":[[[68,8],[97,8],[97,36],[68,36],[68,8]]]}},
	{"type":"Feature","properties":{"ADMIN":"Nepal","ISO_A3":"NPL"},
	 "geometry":{"type":"Polygon","coordinates":[[[80,26],[88,26],[88,30],[80,30],[80,26]]]}}
]}`

const indADM1 = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"shapeName":"Delhi","shapeISO":"IN-DL","shapeGroup":"IND"},
	 "geometry":{"type":"Polygon","coordinates":[[[76.8,28.4],[77.4,28.4],[77.4,28.9],[76.8,28.9],[76.8,28.4]]]}},
	{"type":"Feature","properties":{"shapeName":"Maharashtra","shapeISO":"IN-MH","shapeGroup":"IND"},
	 "geometry":{"type":"Polygon","coordinates":[[[72,16],[80,16],[80,22],[72,22],[72,16]]]}}
]}`

// District datasets ship country-wide; Bengaluru Urban sits outside
// every fixture state and must never survive the containment filter.
const indADM2 = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"shapeName":"Mumbai Suburban","shapeISO":"IN-MH-MS","shapeGroup":"IND"},
	 "geometry":{"type":"Polygon","coordinates":[[[72.7,19],[73.1,19],[73.1,19.3],[72.7,19.3],[72.7,19]]]}},
	{"type":"Feature","properties":{"shapeName":"Pune","shapeISO":"IN-MH-PU","shapeGroup":"IND"},
	 "geometry":{"type":"Polygon","coordinates":[[[73.5,18.2],[74.3,18.2],[74.3,18.8],[73.5,18.8],[73.5,18.2]]]}},
	{"type":"Feature","properties":{"shapeName":"Bengaluru Urban","shapeISO":"IN-KA-BU","shapeGroup":"IND"},
	 "geometry":{"type":"Polygon","coordinates":[[[77.3,12.7],[77.9,12.7],[77.9,13.2],[77.3,13.2],[77.3,12.7]]]}}
]}`

func newTestController(t *testing.T) (*Controller, *render.DisplayList) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/world", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(worldFC)) })
	mux.HandleFunc("/ind1", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(indADM1)) })
	mux.HandleFunc("/ind2", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(indADM2)) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	src := boundaries.NewSource(srv.URL+"/world", map[string]boundaries.CountrySource{
		"IND": {ADM1: srv.URL + "/ind1", ADM2: srv.URL + "/ind2"},
	}, nil, t.Logf)
	caps, err := capitals.Load([]byte(`{"countries":{"IND":{"lat":28.6139,"lng":77.209}}}`))
	if err != nil {
		t.Fatalf("capitals: %v", err)
	}
	canvas := render.NewDisplayList()
	ctrl := NewController(src, canvas, eventbus.NewBus(), caps, map[string][]string{"IND": {"NPL"}}, t.Logf)
	return ctrl, canvas
}

func crumbNames(crumbs []render.Crumb) []string {
	out := make([]string, len(crumbs))
	for i, c := range crumbs {
		out[i] = c.Name
	}
	return out
}

func TestDrillAndBreadcrumbRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctrl, canvas := newTestController(t)

	if err := ctrl.LoadWorld(ctx); err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	if err := ctrl.DrillInto(ctx, "IND"); err != nil {
		t.Fatalf("DrillInto IND: %v", err)
	}

	stack := ctrl.Stack(ctx)
	if len(stack) != 2 || stack[1].Name != "India" || stack[1].ISO != "IND" || stack[1].Level != 1 {
		t.Fatalf("stack after drill = %+v, want [World, India level 1]", stack)
	}

	snap := canvas.Snapshot(ctx)
	if got := crumbNames(snap.Crumbs); len(got) != 2 || got[0] != "World" || got[1] != "India" {
		t.Errorf("breadcrumb = %v, want [World India]", got)
	}
	if !snap.Crumbs[1].Active || snap.Crumbs[0].Active {
		t.Error("breadcrumb active flag should mark the deepest entry only")
	}
	if snap.Region.Level != 1 || len(snap.Region.Shapes) != 2 {
		t.Fatalf("region layer = level %d with %d shapes, want level 1 with 2", snap.Region.Level, len(snap.Region.Shapes))
	}
	if len(snap.Neighbors) != 1 || snap.Neighbors[0].ISO != "NPL" {
		t.Errorf("neighbors = %+v, want dashed Nepal outline", snap.Neighbors)
	}

	// The shape containing New Delhi gets the hot capital styling.
	var delhi, other *render.RegionShape
	for i := range snap.Region.Shapes {
		if snap.Region.Shapes[i].Name == "Delhi" {
			delhi = &snap.Region.Shapes[i]
		} else {
			other = &snap.Region.Shapes[i]
		}
	}
	if delhi == nil || !delhi.Capital || delhi.Style.FillColor != "#ef4444" {
		t.Errorf("capital region not flagged: %+v", delhi)
	}
	if other == nil || other.Capital {
		t.Errorf("non-capital region flagged: %+v", other)
	}

	if err := ctrl.NavigateTo(ctx, 0); err != nil {
		t.Fatalf("NavigateTo(0): %v", err)
	}
	stack = ctrl.Stack(ctx)
	if len(stack) != 1 || stack[0].Name != "World" {
		t.Fatalf("stack after NavigateTo(0) = %+v, want [World]", stack)
	}
	snap = canvas.Snapshot(ctx)
	if snap.Region.Level != 0 || len(snap.Region.Shapes) != 2 {
		t.Errorf("world layer not restored: level %d, %d shapes", snap.Region.Level, len(snap.Region.Shapes))
	}
	if snap.View == nil {
		t.Error("returning to world should set an absolute view")
	}
}

func TestDrillWithoutDataLeavesViewUnchanged(t *testing.T) {
	ctx := context.Background()
	ctrl, canvas := newTestController(t)

	if err := ctrl.LoadWorld(ctx); err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	if err := ctrl.DrillInto(ctx, "NPL"); err != nil {
		t.Fatalf("DrillInto NPL: %v", err)
	}
	if got := ctrl.Stack(ctx); len(got) != 1 {
		t.Fatalf("stack = %+v, want world only (no admin1 source for NPL)", got)
	}
	snap := canvas.Snapshot(ctx)
	if len(snap.Notices) == 0 {
		t.Error("missing user notice for absent state data")
	}
}

func TestDrillStateKeepsOnlyContainedDistricts(t *testing.T) {
	ctx := context.Background()
	ctrl, canvas := newTestController(t)

	if err := ctrl.LoadWorld(ctx); err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	if err := ctrl.DrillInto(ctx, "IND"); err != nil {
		t.Fatalf("DrillInto IND: %v", err)
	}
	if err := ctrl.DrillInto(ctx, "Maharashtra"); err != nil {
		t.Fatalf("DrillInto Maharashtra: %v", err)
	}

	stack := ctrl.Stack(ctx)
	if len(stack) != 3 || stack[2].Name != "Maharashtra" || stack[2].Level != 2 || stack[2].StateCode != "IN-MH" {
		t.Fatalf("stack after state drill = %+v, want [World, India, Maharashtra level 2]", stack)
	}

	snap := canvas.Snapshot(ctx)
	if snap.Region.Level != 2 {
		t.Fatalf("region layer level = %d, want 2", snap.Region.Level)
	}
	names := make(map[string]bool, len(snap.Region.Shapes))
	for _, shape := range snap.Region.Shapes {
		names[shape.Name] = true
	}
	if len(snap.Region.Shapes) != 2 || !names["Mumbai Suburban"] || !names["Pune"] {
		t.Errorf("district shapes = %v, want exactly Mumbai Suburban and Pune", names)
	}
	if names["Bengaluru Urban"] {
		t.Error("district outside the drilled state leaked through the centroid filter")
	}
	if got := crumbNames(snap.Crumbs); len(got) != 3 || got[2] != "Maharashtra" {
		t.Errorf("breadcrumb = %v, want [World India Maharashtra]", got)
	}
	if snap.Bounds == nil {
		t.Error("state drill should frame the clicked state")
	}
}

func TestDrillStateWithNoContainedDistricts(t *testing.T) {
	ctx := context.Background()
	ctrl, canvas := newTestController(t)

	if err := ctrl.LoadWorld(ctx); err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	if err := ctrl.DrillInto(ctx, "IND"); err != nil {
		t.Fatalf("DrillInto IND: %v", err)
	}
	before := canvas.Snapshot(ctx)

	// No fixture district has a centroid inside Delhi.
	if err := ctrl.DrillInto(ctx, "Delhi"); err != nil {
		t.Fatalf("DrillInto Delhi: %v", err)
	}
	if got := ctrl.Stack(ctx); len(got) != 2 || got[1].Name != "India" {
		t.Fatalf("stack = %+v, want unchanged [World, India]", got)
	}
	snap := canvas.Snapshot(ctx)
	if snap.Region.Level != before.Region.Level || len(snap.Region.Shapes) != len(before.Region.Shapes) {
		t.Errorf("region layer changed: level %d with %d shapes, want level %d with %d",
			snap.Region.Level, len(snap.Region.Shapes), before.Region.Level, len(before.Region.Shapes))
	}
	if len(snap.Notices) == 0 {
		t.Error("missing user notice for absent district data")
	}
}

func TestDrillUnknownRegion(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)
	if err := ctrl.LoadWorld(ctx); err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	if err := ctrl.DrillInto(ctx, "ZZZ"); err == nil {
		t.Fatal("expected error for unknown region")
	}
}

func TestRegionChangeSignalCarriesGeometry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl, _ := newTestController(t)
	if err := ctrl.LoadWorld(ctx); err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}

	// Subscribe after world load so the first delivery is the drill.
	bus := ctrl.bus
	regions := bus.SubscribeRegion(ctx, 4)

	if err := ctrl.DrillInto(ctx, "IND"); err != nil {
		t.Fatalf("DrillInto: %v", err)
	}
	rc := <-regions
	if rc.Level != 1 || rc.ISO != "IND" || rc.Geometry == nil {
		t.Errorf("region change = %+v, want level 1 IND with geometry", rc)
	}

	if err := ctrl.NavigateTo(ctx, 0); err != nil {
		t.Fatalf("NavigateTo: %v", err)
	}
	rc = <-regions
	if rc.Level != 0 || rc.Geometry != nil {
		t.Errorf("world region change = %+v, want level 0 with nil geometry", rc)
	}
}
