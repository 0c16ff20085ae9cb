// Package render is the seam between the region engine and whatever
// actually draws the map.  The engine never touches tiles or widgets;
// it emits a display list of polygons, markers and polylines with
// concrete styles, and a thin client replays that list.  Keeping the
// seam this narrow lets every algorithmic package stay testable without
// a rendering stack.
package render

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Style mirrors the handful of vector attributes the dashboard uses.
type Style struct {
	FillColor   string  `json:"fillColor,omitempty"`
	FillOpacity float64 `json:"fillOpacity,omitempty"`
	Color       string  `json:"color,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	DashArray   string  `json:"dashArray,omitempty"`
}

// RegionShape is one drawable administrative region.
type RegionShape struct {
	Name      string            `json:"name"`
	ISO       string            `json:"iso"`
	StateCode string            `json:"stateCode,omitempty"`
	Capital   bool              `json:"capital,omitempty"`
	Style     Style             `json:"style"`
	Geometry  *geojson.Geometry `json:"geometry,omitempty"`
}

// RegionLayer is the polygon layer for one drill-down level.
type RegionLayer struct {
	Level     int           `json:"level"`
	ParentISO string        `json:"parentISO,omitempty"`
	Shapes    []RegionShape `json:"shapes"`
}

// Marker is one live-event point.  Pulse requests the animated
// presentation; plain markers carry an explicit radius.
type Marker struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Color      string  `json:"color"`
	Radius     float64 `json:"radius,omitempty"`
	Pulse      bool    `json:"pulse,omitempty"`
	Tooltip    string  `json:"tooltip,omitempty"`
	Category   string  `json:"category,omitempty"`
	Importance float64 `json:"importance,omitempty"`
}

// Polyline is a styled curve, used for interaction arcs.
type Polyline struct {
	Points [][2]float64 `json:"points"` // lat, lon pairs
	Style  Style        `json:"style"`
	ID     string       `json:"id,omitempty"`
	Label  string       `json:"label,omitempty"`
}

// Dot is a styled point used for single-location interactions.
type Dot struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Color string  `json:"color"`
	ID    string  `json:"id,omitempty"`
	Label string  `json:"label,omitempty"`
}

// Bounds frames the camera after a drill-down.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// BoundsOf converts an orb bound into camera framing.
func BoundsOf(b orb.Bound) Bounds {
	return Bounds{
		MinLat: b.Min[1], MinLon: b.Min[0],
		MaxLat: b.Max[1], MaxLon: b.Max[0],
	}
}

// View is an absolute camera position, used when returning to world.
type View struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zoom int     `json:"zoom"`
}

// Crumb is one breadcrumb entry derived from the navigation stack.
type Crumb struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Canvas is the abstract drawing surface the engine talks to.
type Canvas interface {
	// SetRegionLayer replaces the polygon layer for the current level.
	SetRegionLayer(layer RegionLayer)
	// SetNeighborLayer replaces the dashed neighbor outlines shown at
	// country level; an empty slice clears it.
	SetNeighborLayer(shapes []RegionShape)
	// SetBreadcrumb replaces the breadcrumb trail.
	SetBreadcrumb(crumbs []Crumb)
	// FitBounds frames the camera around a region.
	FitBounds(b Bounds)
	// SetView moves the camera to an absolute position.
	SetView(v View)
	// Notice surfaces a transient, non-blocking user message.
	Notice(msg string)
}

// DisplayList is the reference Canvas: it records the latest drawing
// state so the HTTP API can hand the whole picture to a client in one
// response.  A command channel serializes writers and readers, keeping
// the type safe for concurrent handlers without locks.
type DisplayList struct {
	ops chan func(*listState)
}

type listState struct {
	region    RegionLayer
	neighbors []RegionShape
	crumbs    []Crumb
	bounds    *Bounds
	view      *View
	notices   []string
}

// Snapshot is the serializable view of the display list.
type Snapshot struct {
	Region    RegionLayer   `json:"region"`
	Neighbors []RegionShape `json:"neighbors,omitempty"`
	Crumbs    []Crumb       `json:"breadcrumb"`
	Bounds    *Bounds       `json:"fitBounds,omitempty"`
	View      *View         `json:"view,omitempty"`
	Notices   []string      `json:"notices,omitempty"`
}

// NewDisplayList starts the state goroutine.
func NewDisplayList() *DisplayList {
	d := &DisplayList{ops: make(chan func(*listState))}
	go func() {
		state := &listState{}
		for op := range d.ops {
			op(state)
		}
	}()
	return d
}

func (d *DisplayList) SetRegionLayer(layer RegionLayer) {
	d.ops <- func(s *listState) { s.region = layer }
}

func (d *DisplayList) SetNeighborLayer(shapes []RegionShape) {
	d.ops <- func(s *listState) { s.neighbors = shapes }
}

func (d *DisplayList) SetBreadcrumb(crumbs []Crumb) {
	d.ops <- func(s *listState) { s.crumbs = crumbs }
}

func (d *DisplayList) FitBounds(b Bounds) {
	d.ops <- func(s *listState) { s.bounds = &b; s.view = nil }
}

func (d *DisplayList) SetView(v View) {
	d.ops <- func(s *listState) { s.view = &v; s.bounds = nil }
}

// Notice keeps only a short tail of messages; clients drain them via
// Snapshot and they are cleared on read.
func (d *DisplayList) Notice(msg string) {
	d.ops <- func(s *listState) {
		s.notices = append(s.notices, msg)
		if len(s.notices) > 8 {
			s.notices = s.notices[len(s.notices)-8:]
		}
	}
}

// Snapshot copies the current drawing state and clears pending notices.
func (d *DisplayList) Snapshot(ctx context.Context) Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case d.ops <- func(s *listState) {
		snap := Snapshot{
			Region:    s.region,
			Neighbors: s.neighbors,
			Crumbs:    s.crumbs,
			Bounds:    s.bounds,
			View:      s.view,
			Notices:   s.notices,
		}
		s.notices = nil
		reply <- snap
	}:
	case <-ctx.Done():
		return Snapshot{}
	}
	select {
	case snap := <-reply:
		return snap
	case <-ctx.Done():
		return Snapshot{}
	}
}
