package render

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
)

func TestSnapshotReflectsLatestState(t *testing.T) {
	d := NewDisplayList()
	ctx := context.Background()

	d.SetRegionLayer(RegionLayer{Level: 1, ParentISO: "IND", Shapes: []RegionShape{
		{Name: "Maharashtra", StateCode: "IN-MH"},
	}})
	d.SetBreadcrumb([]Crumb{{Name: "World"}, {Name: "India", Active: true}})
	d.FitBounds(Bounds{MinLat: 8, MinLon: 68, MaxLat: 37, MaxLon: 97})

	snap := d.Snapshot(ctx)
	if snap.Region.Level != 1 || snap.Region.ParentISO != "IND" {
		t.Errorf("region = level %d parent %q, want level 1 parent IND", snap.Region.Level, snap.Region.ParentISO)
	}
	if len(snap.Crumbs) != 2 || !snap.Crumbs[1].Active {
		t.Errorf("breadcrumb = %+v, want two crumbs with the last active", snap.Crumbs)
	}
	if snap.Bounds == nil || snap.View != nil {
		t.Fatalf("after FitBounds: bounds %v view %v, want bounds set and view cleared", snap.Bounds, snap.View)
	}

	// An absolute view replaces the framing bounds.
	d.SetView(View{Lat: 20, Lon: 0, Zoom: 3})
	snap = d.Snapshot(ctx)
	if snap.View == nil || snap.Bounds != nil {
		t.Errorf("after SetView: view %v bounds %v, want view set and bounds cleared", snap.View, snap.Bounds)
	}
}

func TestNoticesDrainOnSnapshot(t *testing.T) {
	d := NewDisplayList()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d.Notice("no district data available")
	}
	snap := d.Snapshot(ctx)
	if len(snap.Notices) != 8 {
		t.Errorf("notices = %d, want tail of 8", len(snap.Notices))
	}
	if again := d.Snapshot(ctx); len(again.Notices) != 0 {
		t.Errorf("second snapshot notices = %d, want 0 after drain", len(again.Notices))
	}
}

func TestBoundsOf(t *testing.T) {
	b := BoundsOf(orb.Bound{Min: orb.Point{68, 8}, Max: orb.Point{97, 37}})
	want := Bounds{MinLat: 8, MinLon: 68, MaxLat: 37, MaxLon: 97}
	if b != want {
		t.Errorf("BoundsOf = %+v, want %+v", b, want)
	}
}
