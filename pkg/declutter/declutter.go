// Package declutter decides which live events actually reach the map.
// The firehose routinely delivers hundreds of points packed into the
// same conflict zones; drawing them all produces an unreadable smear.
// The filter bins points into a coarse grid, measures local density,
// and raises the importance floor only where the map is crowded, so an
// isolated low-importance event in a quiet region still shows while
// the fiftieth protest marker in one city block does not.
package declutter

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"world-pulse-map/pkg/geomindex"
	"world-pulse-map/pkg/render"
)

// Mode selects the filtering policy.
type Mode string

const (
	// ModeAll passes every event surviving the category filter.
	ModeAll Mode = "all"
	// ModeCritical keeps only events with importance >= 3.
	ModeCritical Mode = "critical"
	// ModeSmart applies the adaptive per-cell density threshold.
	ModeSmart Mode = "smart"
)

// ParseMode maps request strings onto a policy, defaulting to smart.
func ParseMode(raw string) Mode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "all":
		return ModeAll
	case "critical":
		return ModeCritical
	default:
		return ModeSmart
	}
}

// Categories carrying an on-map toggle.  Events outside this taxonomy
// always pass the category stage so new upstream categories degrade to
// "shown" rather than silently vanishing.
var recognizedCategories = map[string]struct{}{
	"CONFLICT": {}, "VIOLENCE": {}, "PROTEST": {},
	"CRIME": {}, "ACCIDENT": {}, "DISASTER": {},
}

// Grid granularity in degrees; coarse on purpose so a "cell" is a
// metro area, not a street.
const cellDegrees = 5.0

// Density tiers of the smart mode.
const (
	denseCellCount  = 20 // above this, require importance >= 3
	mediumCellCount = 5  // above this, require importance >= 2
)

// pulseLimit caps how many markers get the animated presentation.
const pulseLimit = 30

// Options configure one filter pass.
type Options struct {
	Mode Mode
	// ActiveCategories lists the recognized categories the caller wants
	// shown.  Nil means all recognized categories are active.
	ActiveCategories []string
	// Region scopes events to a clicked region; nil keeps everything.
	Region orb.Geometry
}

// Result reports the surviving markers plus bookkeeping counters.
type Result struct {
	Markers    []render.Marker
	Total      int
	Suppressed int
}

// CellKey bins a coordinate into its 5-degree grid cell.
func CellKey(lat, lon float64) string {
	return fmt.Sprintf("%d,%d", int(math.Floor(lat/cellDegrees)), int(math.Floor(lon/cellDegrees)))
}

// Importance reads the numeric importance property, defaulting to 1.
func Importance(f *geojson.Feature) float64 {
	if f == nil || f.Properties == nil {
		return 1
	}
	switch v := f.Properties["importance"].(type) {
	case float64:
		if v >= 1 {
			return v
		}
	case int:
		if v >= 1 {
			return float64(v)
		}
	}
	return 1
}

// Filter runs the full pipeline: region scoping, density binning,
// category filter, mode filter, marker synthesis.  The density map is
// computed over region-scoped points before any category filtering so
// the adaptive threshold reflects what is actually on screen.
func Filter(features []*geojson.Feature, opts Options) Result {
	scoped := make([]*geojson.Feature, 0, len(features))
	for _, f := range features {
		pt, ok := eventPoint(f)
		if !ok {
			continue
		}
		if opts.Region != nil && !geomindex.PointInGeometry(pt, opts.Region) {
			continue
		}
		scoped = append(scoped, f)
	}

	// Transient per-refresh density map; discarded after thresholding.
	density := make(map[string]int, len(scoped))
	for _, f := range scoped {
		pt, _ := eventPoint(f)
		density[CellKey(pt[1], pt[0])]++
	}

	active := activeSet(opts.ActiveCategories)

	var markers []render.Marker
	suppressed := 0
	for _, f := range scoped {
		cat := category(f)
		if _, recognized := recognizedCategories[cat]; recognized && active != nil {
			if _, on := active[cat]; !on {
				suppressed++
				continue
			}
		}

		importance := Importance(f)
		pt, _ := eventPoint(f)

		pass := true
		switch opts.Mode {
		case ModeAll:
		case ModeCritical:
			pass = importance >= 3
		default: // smart
			switch d := density[CellKey(pt[1], pt[0])]; {
			case d > denseCellCount:
				pass = importance >= 3
			case d > mediumCellCount:
				pass = importance >= 2
			}
		}
		if !pass {
			suppressed++
			continue
		}

		color := "#ef4444"
		if c, ok := f.Properties["color"].(string); ok && c != "" {
			color = c
		}
		name, _ := f.Properties["name"].(string)

		m := render.Marker{
			Lat:        pt[1],
			Lon:        pt[0],
			Color:      color,
			Category:   cat,
			Importance: importance,
			Tooltip:    fmt.Sprintf("%s: %s (%g)", cat, name, importance),
		}
		if len(markers) < pulseLimit {
			m.Pulse = true
		} else {
			m.Radius = 3 + math.Min(importance, 5)
		}
		markers = append(markers, m)
	}

	return Result{Markers: markers, Total: len(markers), Suppressed: suppressed}
}

// eventPoint extracts the coordinate of a point feature.
func eventPoint(f *geojson.Feature) (orb.Point, bool) {
	if f == nil || f.Geometry == nil {
		return orb.Point{}, false
	}
	pt, ok := f.Geometry.(orb.Point)
	return pt, ok
}

// category reads the upper-cased event category, defaulting to OTHER.
func category(f *geojson.Feature) string {
	if c, ok := f.Properties["category"].(string); ok && c != "" {
		return strings.ToUpper(c)
	}
	return "OTHER"
}

// activeSet converts the caller's list to a set; nil means "all on".
func activeSet(cats []string) map[string]struct{} {
	if cats == nil {
		return nil
	}
	set := make(map[string]struct{}, len(cats))
	for _, c := range cats {
		set[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return set
}
