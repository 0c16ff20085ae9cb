// Package capitals flags the administrative region containing a
// country or state capital so the renderer can style it apart from its
// siblings.  The lookup tables are plain embedded JSON; containment is
// decided geometrically rather than by name so mismatched spellings in
// boundary datasets cannot unseat a capital.
package capitals

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"

	"world-pulse-map/pkg/geomindex"
)

// Place is a capital coordinate.
type Place struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Table holds country capitals keyed by ISO code and state capitals
// keyed by country ISO then state code.
type Table struct {
	Countries map[string]Place            `json:"countries"`
	States    map[string]map[string]Place `json:"states"`
}

// Load decodes the embedded capitals JSON.
func Load(data []byte) (*Table, error) {
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("capitals: %w", err)
	}
	return &t, nil
}

// Targets returns the capital coordinates relevant to one rendered
// layer: at country level (1) the single national capital of the
// parent, at state level (2) every state capital of the parent
// country.  World level has no capital highlighting.
func (t *Table) Targets(level int, parentISO string) []Place {
	if t == nil {
		return nil
	}
	switch level {
	case 1:
		if p, ok := t.Countries[parentISO]; ok {
			return []Place{p}
		}
	case 2:
		states := t.States[parentISO]
		if len(states) == 0 {
			return nil
		}
		out := make([]Place, 0, len(states))
		for _, p := range states {
			out = append(out, p)
		}
		return out
	}
	return nil
}

// Contains reports whether any of the targets falls inside the given
// region geometry.
func Contains(targets []Place, geometry orb.Geometry) bool {
	if geometry == nil {
		return false
	}
	for _, p := range targets {
		if geomindex.PointInGeometry(orb.Point{p.Lng, p.Lat}, geometry) {
			return true
		}
	}
	return false
}
