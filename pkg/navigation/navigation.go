// Package navigation owns the drill-down state machine: the stack of
// visited levels, the currently rendered boundary layer, and the fuzzy
// name lookup built from it.  A single goroutine serializes every
// mutation through a command channel, so the controller needs no
// locks.  "Don't communicate by sharing memory, share memory by
// communicating."
package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"world-pulse-map/pkg/adminnames"
	"world-pulse-map/pkg/boundaries"
	"world-pulse-map/pkg/capitals"
	"world-pulse-map/pkg/eventbus"
	"world-pulse-map/pkg/geomindex"
	"world-pulse-map/pkg/render"
)

// ErrUnknownRegion is returned when a drill target does not match any
// shape in the current layer.
var ErrUnknownRegion = errors.New("navigation: unknown region")

// Entry is one level of the navigation stack.  The world entry always
// sits at index 0.
type Entry struct {
	Name      string         `json:"name"`
	ISO       string         `json:"iso,omitempty"`
	StateCode string         `json:"stateCode,omitempty"`
	Level     int            `json:"level"`
	Bounds    *render.Bounds `json:"bounds,omitempty"`
}

// Region polygon styling.  The capital region is painted hot so the
// eye finds the seat of government without labels.
var (
	baseStyle     = render.Style{FillColor: "#ffffff", FillOpacity: 0.7, Color: "#e5e7eb", Weight: 1.2}
	capitalStyle  = render.Style{FillColor: "#ef4444", FillOpacity: 0.9, Color: "#b91c1c", Weight: 2}
	neighborStyle = render.Style{FillColor: "#9ca3af", FillOpacity: 0.05, Color: "#9ca3af", Weight: 1, DashArray: "4 4"}
)

// defaultWorldView is the camera position when no region is selected.
var defaultWorldView = render.View{Lat: 20, Lon: 0, Zoom: 3}

type navState struct {
	stack       []Entry
	layer       render.RegionLayer
	worldShapes []render.RegionShape
	lookup      *adminnames.Lookup
	generation  uint64
	fills       map[string]render.Style
}

// Controller drives navigation.  All exported methods are safe for
// concurrent use.
type Controller struct {
	ops       chan func(*navState)
	source    *boundaries.Source
	canvas    render.Canvas
	bus       *eventbus.Bus
	capitals  *capitals.Table
	neighbors map[string][]string
	home      render.View
	logf      func(format string, args ...any)
}

// NewController wires the controller and starts its state goroutine.
// neighbors maps a country ISO to the ISO codes outlined around it at
// country level; it may be nil.
func NewController(source *boundaries.Source, canvas render.Canvas, bus *eventbus.Bus, caps *capitals.Table, neighbors map[string][]string, logf func(string, ...any)) *Controller {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	c := &Controller{
		ops:       make(chan func(*navState)),
		source:    source,
		canvas:    canvas,
		bus:       bus,
		capitals:  caps,
		neighbors: neighbors,
		home:      defaultWorldView,
		logf:      logf,
	}
	go func() {
		s := &navState{stack: []Entry{{Name: "World", Level: boundaries.LevelWorld}}}
		for op := range c.ops {
			op(s)
		}
	}()
	return c
}

// SetHomeView overrides the world-level camera position.  Call before
// LoadWorld; the server feeds it from the -default-lat/-lon/-zoom flags.
func (c *Controller) SetHomeView(v render.View) {
	done := make(chan struct{})
	c.ops <- func(s *navState) {
		c.home = v
		close(done)
	}
	<-done
}

// LoadWorld fetches and renders the world layer.  Called once at
// startup and again when breadcrumb navigation returns to level 0.
func (c *Controller) LoadWorld(ctx context.Context) error {
	url, ok := c.source.URLFor(boundaries.LevelWorld, "")
	if !ok {
		return errors.New("navigation: no world boundary source configured")
	}
	fc, err := c.source.Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("world layer: %w", err)
	}
	shapes := c.buildShapes(fc, boundaries.LevelWorld, "")
	done := make(chan struct{})
	c.ops <- func(s *navState) {
		s.worldShapes = shapes
		s.stack = s.stack[:1]
		s.generation++
		s.lookup = nil
		s.fills = nil
		c.renderLevel(s, render.RegionLayer{Level: boundaries.LevelWorld, Shapes: shapes}, nil)
		c.canvas.SetView(c.home)
		c.emit(boundaries.LevelWorld, "", nil)
		close(done)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DrillInto descends one level into the region matching ref.  ref is
// compared against the current layer's ISO codes, state codes, and
// display names.  Missing deeper data is not an error: the user gets a
// notice and the view stays put.
func (c *Controller) DrillInto(ctx context.Context, ref string) error {
	errc := make(chan error, 1)
	c.ops <- func(s *navState) {
		shape, ok := findShape(s.layer.Shapes, ref)
		if !ok {
			errc <- fmt.Errorf("%w: %q", ErrUnknownRegion, ref)
			return
		}
		switch s.stack[len(s.stack)-1].Level {
		case boundaries.LevelWorld:
			c.drillCountry(ctx, s, shape, errc)
		case boundaries.LevelADM1:
			c.drillState(ctx, s, shape, errc)
		default:
			// Districts are the floor; show info only.
			c.canvas.Notice(fmt.Sprintf("%s: no deeper subdivisions", shape.Name))
			errc <- nil
		}
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) drillCountry(ctx context.Context, s *navState, shape render.RegionShape, errc chan<- error) {
	url, ok := c.source.URLFor(boundaries.LevelADM1, shape.ISO)
	if !ok {
		c.canvas.Notice(fmt.Sprintf("%s: no state data available", shape.Name))
		errc <- nil
		return
	}
	s.generation++
	gen := s.generation
	clicked := shape
	go func() {
		fc, err := c.source.Fetch(ctx, url)
		c.ops <- func(s *navState) {
			if s.generation != gen {
				c.logf("navigation: dropped stale country fetch for %s", clicked.ISO)
				errc <- nil
				return
			}
			if err != nil || len(fc.Features) == 0 {
				if err != nil {
					c.logf("navigation: admin1 fetch %s: %v", clicked.ISO, err)
				}
				c.canvas.Notice(fmt.Sprintf("%s: no state data available", clicked.Name))
				errc <- nil
				return
			}
			shapes := c.buildShapes(fc, boundaries.LevelADM1, clicked.ISO)
			bounds := shapeBounds(clicked)
			s.stack = append(s.stack, Entry{
				Name: clicked.Name, ISO: clicked.ISO,
				Level: boundaries.LevelADM1, Bounds: bounds,
			})
			s.lookup = buildLookup(shapes)
			s.fills = nil
			c.renderLevel(s, render.RegionLayer{Level: boundaries.LevelADM1, ParentISO: clicked.ISO, Shapes: shapes}, c.neighborShapes(s, clicked.ISO))
			if bounds != nil {
				c.canvas.FitBounds(*bounds)
			}
			c.emit(boundaries.LevelADM1, clicked.ISO, geometryOf(clicked))
			errc <- nil
		}
	}()
}

func (c *Controller) drillState(ctx context.Context, s *navState, shape render.RegionShape, errc chan<- error) {
	parent := s.stack[len(s.stack)-1]
	url, ok := c.source.URLFor(boundaries.LevelADM2, parent.ISO)
	if !ok {
		c.canvas.Notice(fmt.Sprintf("%s: no district data available", shape.Name))
		errc <- nil
		return
	}
	s.generation++
	gen := s.generation
	clicked := shape
	parentISO := parent.ISO
	go func() {
		fc, err := c.source.Fetch(ctx, url)
		c.ops <- func(s *navState) {
			if s.generation != gen {
				c.logf("navigation: dropped stale state fetch for %s/%s", parentISO, clicked.Name)
				errc <- nil
				return
			}
			var scoped *geojson.FeatureCollection
			if err == nil {
				scoped = filterByCentroid(fc, geometryOf(clicked))
			}
			if err != nil || scoped == nil || len(scoped.Features) == 0 {
				if err != nil {
					c.logf("navigation: admin2 fetch %s: %v", parentISO, err)
				}
				c.canvas.Notice(fmt.Sprintf("%s: no district data available", clicked.Name))
				errc <- nil
				return
			}
			shapes := c.buildShapes(scoped, boundaries.LevelADM2, parentISO)
			bounds := shapeBounds(clicked)
			s.stack = append(s.stack, Entry{
				Name: clicked.Name, ISO: parentISO, StateCode: clicked.StateCode,
				Level: boundaries.LevelADM2, Bounds: bounds,
			})
			s.fills = nil
			c.renderLevel(s, render.RegionLayer{Level: boundaries.LevelADM2, ParentISO: parentISO, Shapes: shapes}, nil)
			if bounds != nil {
				c.canvas.FitBounds(*bounds)
			}
			c.emit(boundaries.LevelADM2, parentISO, geometryOf(clicked))
			errc <- nil
		}
	}()
}

// NavigateTo truncates the stack to index+1 and re-renders that level.
// Index 0 returns to the world view with region scoping cleared.
func (c *Controller) NavigateTo(ctx context.Context, index int) error {
	errc := make(chan error, 1)
	c.ops <- func(s *navState) {
		if index < 0 || index >= len(s.stack) {
			errc <- fmt.Errorf("navigation: stack index %d out of range", index)
			return
		}
		s.stack = s.stack[:index+1]
		s.generation++
		target := s.stack[index]
		switch target.Level {
		case boundaries.LevelWorld:
			s.lookup = nil
			s.fills = nil
			c.renderLevel(s, render.RegionLayer{Level: boundaries.LevelWorld, Shapes: s.worldShapes}, nil)
			c.canvas.SetView(c.home)
			c.emit(boundaries.LevelWorld, "", nil)
			errc <- nil
		case boundaries.LevelADM1:
			c.reenterCountry(ctx, s, target, errc)
		default:
			errc <- fmt.Errorf("navigation: cannot navigate directly to level %d", target.Level)
		}
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) reenterCountry(ctx context.Context, s *navState, target Entry, errc chan<- error) {
	url, ok := c.source.URLFor(boundaries.LevelADM1, target.ISO)
	if !ok {
		errc <- fmt.Errorf("navigation: no source for %s", target.ISO)
		return
	}
	gen := s.generation
	go func() {
		fc, err := c.source.Fetch(ctx, url)
		c.ops <- func(s *navState) {
			if s.generation != gen {
				errc <- nil
				return
			}
			if err != nil || len(fc.Features) == 0 {
				c.canvas.Notice(fmt.Sprintf("%s: no state data available", target.Name))
				errc <- nil
				return
			}
			shapes := c.buildShapes(fc, boundaries.LevelADM1, target.ISO)
			s.lookup = buildLookup(shapes)
			s.fills = nil
			c.renderLevel(s, render.RegionLayer{Level: boundaries.LevelADM1, ParentISO: target.ISO, Shapes: shapes}, c.neighborShapes(s, target.ISO))
			if target.Bounds != nil {
				c.canvas.FitBounds(*target.Bounds)
			}
			c.emit(boundaries.LevelADM1, target.ISO, regionGeometry(s, target.ISO))
			errc <- nil
		}
	}()
}

// Stack returns a copy of the navigation stack.
func (c *Controller) Stack(ctx context.Context) []Entry {
	reply := make(chan []Entry, 1)
	c.ops <- func(s *navState) {
		out := make([]Entry, len(s.stack))
		copy(out, s.stack)
		reply <- out
	}
	select {
	case out := <-reply:
		return out
	case <-ctx.Done():
		return nil
	}
}

// LayerSnapshot returns the current layer, its fuzzy name lookup, and
// the active level.  The lookup is nil outside level 1.
func (c *Controller) LayerSnapshot(ctx context.Context) (render.RegionLayer, *adminnames.Lookup, int) {
	type snap struct {
		layer  render.RegionLayer
		lookup *adminnames.Lookup
		level  int
	}
	reply := make(chan snap, 1)
	c.ops <- func(s *navState) {
		shapes := make([]render.RegionShape, len(s.layer.Shapes))
		copy(shapes, s.layer.Shapes)
		layer := s.layer
		layer.Shapes = shapes
		reply <- snap{layer: layer, lookup: s.lookup, level: s.stack[len(s.stack)-1].Level}
	}
	select {
	case v := <-reply:
		return v.layer, v.lookup, v.level
	case <-ctx.Done():
		return render.RegionLayer{}, nil, 0
	}
}

// ApplyFills recolors the current layer's non-capital shapes by
// display name.  Shapes absent from fills keep the previous styling.
// Passing nil clears all overrides.  Used by the forecast choropleth.
func (c *Controller) ApplyFills(ctx context.Context, fills map[string]render.Style) {
	done := make(chan struct{})
	c.ops <- func(s *navState) {
		s.fills = fills
		c.repaint(s)
		close(done)
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// renderLevel stores and draws a fresh layer along with breadcrumb and
// neighbor outlines.
func (c *Controller) renderLevel(s *navState, layer render.RegionLayer, neighbors []render.RegionShape) {
	s.layer = layer
	c.repaint(s)
	c.canvas.SetNeighborLayer(neighbors)
	crumbs := make([]render.Crumb, len(s.stack))
	for i, e := range s.stack {
		crumbs[i] = render.Crumb{Name: e.Name, Active: i == len(s.stack)-1}
	}
	c.canvas.SetBreadcrumb(crumbs)
}

// repaint pushes the stored layer to the canvas with fill overrides
// applied.
func (c *Controller) repaint(s *navState) {
	if len(s.fills) == 0 {
		c.canvas.SetRegionLayer(s.layer)
		return
	}
	shapes := make([]render.RegionShape, len(s.layer.Shapes))
	copy(shapes, s.layer.Shapes)
	for i := range shapes {
		if shapes[i].Capital {
			continue
		}
		if style, ok := s.fills[shapes[i].Name]; ok {
			shapes[i].Style = style
		}
	}
	layer := s.layer
	layer.Shapes = shapes
	c.canvas.SetRegionLayer(layer)
}

// emit publishes the paired navigation signals consumed by the live
// event scoper and the overlay layers.
func (c *Controller) emit(level int, iso string, geometry orb.Geometry) {
	if c.bus == nil {
		return
	}
	c.bus.PublishRegion(eventbus.RegionChange{Level: level, ISO: iso, Geometry: geometry})
	c.bus.PublishLevel(eventbus.LevelChange{Level: level})
}

// buildShapes converts a feature collection into styled shapes,
// flagging capital regions geometrically.
func (c *Controller) buildShapes(fc *geojson.FeatureCollection, level int, parentISO string) []render.RegionShape {
	targets := c.capitals.Targets(level, parentISO)
	shapes := make([]render.RegionShape, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		shape := render.RegionShape{
			Name:      boundaries.DisplayName(f),
			ISO:       boundaries.ISOCode(f, parentISO),
			StateCode: boundaries.StateCode(f),
			Style:     baseStyle,
			Geometry:  geojson.NewGeometry(f.Geometry),
		}
		if capitals.Contains(targets, f.Geometry) {
			shape.Capital = true
			shape.Style = capitalStyle
		}
		shapes = append(shapes, shape)
	}
	return shapes
}

// neighborShapes pulls the dashed outlines of adjacent countries from
// the cached world layer.
func (c *Controller) neighborShapes(s *navState, iso string) []render.RegionShape {
	codes := c.neighbors[iso]
	if len(codes) == 0 {
		return nil
	}
	byISO := make(map[string]render.RegionShape, len(s.worldShapes))
	for _, shape := range s.worldShapes {
		byISO[shape.ISO] = shape
	}
	out := make([]render.RegionShape, 0, len(codes))
	for _, code := range codes {
		shape, ok := byISO[code]
		if !ok {
			continue
		}
		shape.Style = neighborStyle
		shape.Capital = false
		out = append(out, shape)
	}
	return out
}

// regionGeometry recovers a country's geometry from the world layer
// for re-emitting the scoping signal on breadcrumb re-entry.
func regionGeometry(s *navState, iso string) orb.Geometry {
	for _, shape := range s.worldShapes {
		if shape.ISO == iso {
			return geometryOf(shape)
		}
	}
	return nil
}

func geometryOf(shape render.RegionShape) orb.Geometry {
	if shape.Geometry == nil {
		return nil
	}
	return shape.Geometry.Geometry()
}

func shapeBounds(shape render.RegionShape) *render.Bounds {
	g := geometryOf(shape)
	if g == nil {
		return nil
	}
	b := render.BoundsOf(g.Bound())
	return &b
}

// filterByCentroid scopes a national district collection down to the
// districts whose centroid falls inside one state.  Centroid is the
// plain vertex average of the outer ring, the same approximation the
// capital flagging uses.
func filterByCentroid(fc *geojson.FeatureCollection, state orb.Geometry) *geojson.FeatureCollection {
	if state == nil {
		return nil
	}
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		center, ok := geomindex.Centroid(f)
		if !ok {
			continue
		}
		if geomindex.PointInGeometry(center, state) {
			out.Append(f)
		}
	}
	return out
}

func buildLookup(shapes []render.RegionShape) *adminnames.Lookup {
	names := make([]string, 0, len(shapes))
	for _, shape := range shapes {
		names = append(names, shape.Name)
	}
	return adminnames.NewLookup(names)
}

func findShape(shapes []render.RegionShape, ref string) (render.RegionShape, bool) {
	for _, shape := range shapes {
		if strings.EqualFold(shape.ISO, ref) || strings.EqualFold(shape.StateCode, ref) || strings.EqualFold(shape.Name, ref) {
			return shape, true
		}
	}
	return render.RegionShape{}, false
}
