// Package geomindex answers "is this point inside that region" and
// "where is the middle of this region" over GeoJSON-shaped geometries.
// The implementation favours simplicity over cartographic perfection,
// echoing the Go Proverb "Clear is better than clever": a plain
// ray-casting parity test over outer rings classifies live events and
// child districts accurately enough for drill-down navigation.
package geomindex

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// PointInRing runs the classic ray-casting parity test against a single
// ring.  Points exactly on an edge land on whichever side the parity
// logic picks, but the answer is deterministic for identical input,
// which is all the navigation layer requires.
func PointInRing(pt orb.Point, ring orb.Ring) bool {
	x, y := pt[0], pt[1]
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// PointInGeometry reports containment for Polygon and MultiPolygon
// geometries.  Only outer rings are consulted; holes are intentionally
// ignored because administrative boundaries rarely carve out enclaves
// that matter at dashboard zoom levels, and skipping them keeps the
// test a single pass.  Any other geometry type is "not inside".
func PointInGeometry(pt orb.Point, geometry orb.Geometry) bool {
	switch g := geometry.(type) {
	case orb.Polygon:
		if len(g) == 0 {
			return false
		}
		return PointInRing(pt, g[0])
	case orb.MultiPolygon:
		for _, poly := range g {
			if len(poly) == 0 {
				continue
			}
			if PointInRing(pt, poly[0]) {
				return true
			}
		}
	}
	return false
}

// Centroid returns the vertex-average centre of a feature's first outer
// ring.  This is not an area-weighted centroid: elongated or concave
// shapes can place it off-centre, which is acceptable because callers
// only use it to decide which parent region a child belongs to.
// The second return is false when the feature has no usable ring.
func Centroid(feature *geojson.Feature) (orb.Point, bool) {
	if feature == nil || feature.Geometry == nil {
		return orb.Point{}, false
	}

	var ring orb.Ring
	switch g := feature.Geometry.(type) {
	case orb.Polygon:
		if len(g) > 0 {
			ring = g[0]
		}
	case orb.MultiPolygon:
		if len(g) > 0 && len(g[0]) > 0 {
			ring = g[0][0]
		}
	}
	if len(ring) == 0 {
		return orb.Point{}, false
	}

	var sumX, sumY float64
	for _, coord := range ring {
		sumX += coord[0]
		sumY += coord[1]
	}
	n := float64(len(ring))
	return orb.Point{sumX / n, sumY / n}, true
}
