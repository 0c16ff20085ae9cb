// Package interactions draws country-to-country relations as curved
// arcs over the world view.  A typed registry keyed by id replaces any
// string round-tripping through presentation markup; overlays listen
// to level changes and hide themselves below world level.
package interactions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"world-pulse-map/pkg/eventbus"
	"world-pulse-map/pkg/geodesic"
	"world-pulse-map/pkg/render"
)

// Coord anchors a country for arc endpoints.
type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Interaction is one relation between two or more countries.  Point
// interactions carry an explicit Location and may name no countries at
// all; they render as a single dot instead of arcs.
type Interaction struct {
	ID        string   `json:"id"`
	Category  string   `json:"category"`
	Subtype   string   `json:"subtype,omitempty"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary,omitempty"`
	Countries []string `json:"countries,omitempty"`
	Location  *Coord   `json:"location,omitempty"`
	Color     string   `json:"color,omitempty"`
	Date      string   `json:"date,omitempty"`
}

// Manifest is the embedded seed: the category taxonomy plus initial
// interactions.
type Manifest struct {
	Categories   map[string][]string `json:"categories"`
	Interactions []Interaction       `json:"interactions"`
}

// LoadManifest decodes the embedded manifest JSON.
func LoadManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("interactions manifest: %w", err)
	}
	return &m, nil
}

// LoadCoords decodes the country anchor table.
func LoadCoords(data []byte) (map[string]Coord, error) {
	var out map[string]Coord
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("country coords: %w", err)
	}
	return out, nil
}

const defaultArcColor = "#6366f1"

// Overlay is the drawable form of one category.
type Overlay struct {
	Category string            `json:"category"`
	Arcs     []render.Polyline `json:"arcs"`
	Dots     []render.Dot      `json:"dots"`
	Hidden   bool              `json:"hidden,omitempty"`
}

type regState struct {
	byID       map[string]Interaction
	byCategory map[string][]string
	order      []string
	categories map[string][]string
	level      int
}

// Registry owns all interactions.  A command channel serializes
// access; Run keeps the visibility level current from the bus.
type Registry struct {
	ops    chan func(*regState)
	coords map[string]Coord
	bus    *eventbus.Bus
	logf   func(format string, args ...any)
}

// NewRegistry builds the registry and seeds it from the manifest.
func NewRegistry(m *Manifest, coords map[string]Coord, bus *eventbus.Bus, logf func(string, ...any)) *Registry {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	r := &Registry{
		ops:    make(chan func(*regState)),
		coords: coords,
		bus:    bus,
		logf:   logf,
	}
	go func() {
		s := &regState{
			byID:       make(map[string]Interaction),
			byCategory: make(map[string][]string),
			categories: map[string][]string{},
		}
		if m != nil {
			s.categories = m.Categories
		}
		for op := range r.ops {
			op(s)
		}
	}()
	if m != nil {
		for _, in := range m.Interactions {
			r.Upsert(context.Background(), in)
		}
	}
	return r
}

// Run tracks the navigation level so overlays can hide themselves.
// Blocks until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	if r.bus == nil {
		return
	}
	levels := r.bus.SubscribeLevel(ctx, 4)
	for {
		select {
		case <-ctx.Done():
			return
		case lc, ok := <-levels:
			if !ok {
				return
			}
			r.ops <- func(s *regState) { s.level = lc.Level }
		}
	}
}

// Upsert stores an interaction, minting an id when absent, and
// returns the stored value.
func (r *Registry) Upsert(ctx context.Context, in Interaction) Interaction {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	in.Category = strings.ToUpper(strings.TrimSpace(in.Category))
	done := make(chan struct{})
	r.ops <- func(s *regState) {
		if _, exists := s.byID[in.ID]; !exists {
			s.order = append(s.order, in.ID)
			s.byCategory[in.Category] = append(s.byCategory[in.Category], in.ID)
		} else if old := s.byID[in.ID]; old.Category != in.Category {
			s.byCategory[old.Category] = removeID(s.byCategory[old.Category], in.ID)
			s.byCategory[in.Category] = append(s.byCategory[in.Category], in.ID)
		}
		s.byID[in.ID] = in
		close(done)
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
	return in
}

// Get returns an interaction by id.
func (r *Registry) Get(ctx context.Context, id string) (Interaction, bool) {
	reply := make(chan Interaction, 1)
	miss := make(chan struct{})
	r.ops <- func(s *regState) {
		if in, ok := s.byID[id]; ok {
			reply <- in
			return
		}
		close(miss)
	}
	select {
	case in := <-reply:
		return in, true
	case <-miss:
		return Interaction{}, false
	case <-ctx.Done():
		return Interaction{}, false
	}
}

// FindByText returns interactions whose title or summary contains the
// query, case-insensitively, in insertion order.
func (r *Registry) FindByText(ctx context.Context, query string) []Interaction {
	query = strings.ToLower(strings.TrimSpace(query))
	reply := make(chan []Interaction, 1)
	r.ops <- func(s *regState) {
		var out []Interaction
		for _, id := range s.order {
			in := s.byID[id]
			if query == "" ||
				strings.Contains(strings.ToLower(in.Title), query) ||
				strings.Contains(strings.ToLower(in.Summary), query) {
				out = append(out, in)
			}
		}
		reply <- out
	}
	select {
	case out := <-reply:
		return out
	case <-ctx.Done():
		return nil
	}
}

// Categories returns the taxonomy from the manifest.
func (r *Registry) Categories(ctx context.Context) map[string][]string {
	reply := make(chan map[string][]string, 1)
	r.ops <- func(s *regState) {
		out := make(map[string][]string, len(s.categories))
		for k, v := range s.categories {
			out[k] = append([]string(nil), v...)
		}
		reply <- out
	}
	select {
	case out := <-reply:
		return out
	case <-ctx.Done():
		return nil
	}
}

// RenderCategory builds the overlay for one category, optionally
// narrowed to a single subtype.  Away from the world view the overlay
// comes back Hidden with no geometry, per the level-visibility
// contract.
func (r *Registry) RenderCategory(ctx context.Context, category, subtype string) Overlay {
	category = strings.ToUpper(strings.TrimSpace(category))
	subtype = strings.TrimSpace(subtype)
	reply := make(chan Overlay, 1)
	r.ops <- func(s *regState) {
		if s.level != 0 {
			reply <- Overlay{Category: category, Hidden: true}
			return
		}
		ov := Overlay{Category: category}
		for _, id := range s.byCategory[category] {
			in := s.byID[id]
			if subtype != "" && !strings.EqualFold(in.Subtype, subtype) {
				continue
			}
			r.appendShapes(&ov, in)
		}
		reply <- ov
	}
	select {
	case ov := <-reply:
		return ov
	case <-ctx.Done():
		return Overlay{Category: category, Hidden: true}
	}
}

// appendShapes turns one interaction into arcs between every
// participant pair plus a dot per anchored participant.  An explicit
// location renders as a single dot, with or without country anchors.
func (r *Registry) appendShapes(ov *Overlay, in Interaction) {
	color := in.Color
	if color == "" {
		color = defaultArcColor
	}
	if in.Location != nil {
		ov.Dots = append(ov.Dots, render.Dot{
			Lat: in.Location.Lat, Lon: in.Location.Lng,
			Color: color, ID: in.ID, Label: in.Title,
		})
	}
	var anchors []geodesic.LatLon
	for _, iso := range in.Countries {
		c, ok := r.coords[iso]
		if !ok {
			r.logf("interactions: no anchor for %s in %s", iso, in.ID)
			continue
		}
		anchors = append(anchors, geodesic.LatLon{Lat: c.Lat, Lon: c.Lng})
		ov.Dots = append(ov.Dots, render.Dot{
			Lat: c.Lat, Lon: c.Lng, Color: color, ID: in.ID, Label: in.Title,
		})
	}
	for i := 0; i < len(anchors); i++ {
		for j := i + 1; j < len(anchors); j++ {
			arc := geodesic.BuildArc(anchors[i], anchors[j], 0)
			points := make([][2]float64, len(arc))
			for k, p := range arc {
				points[k] = [2]float64{p.Lat, p.Lon}
			}
			ov.Arcs = append(ov.Arcs, render.Polyline{
				Points: points,
				Style:  render.Style{Color: color, Weight: 2, Opacity: 0.8},
				ID:     in.ID,
				Label:  in.Title,
			})
		}
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
