// Package geodesic builds the curved polylines that connect two
// countries on the dashboard.  The curve is a planar quadratic Bézier
// in latitude/longitude space rather than a true great-circle route:
// it feeds a renderer, not a navigation system, and the approximation
// buys visual smoothness for almost no arithmetic.
package geodesic

import "math"

// LatLon is a map coordinate in the order renderers expect.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// curvatureFactor displaces the Bézier control point by a quarter of
// the planar endpoint distance, which reads as a gentle arch at any
// scale.
const curvatureFactor = 0.25

// maxControlLat keeps the control point away from the poles where web
// mercator rendering distorts wildly.
const maxControlLat = 85.0

// BuildArc samples numPoints+1 positions along the curve from start to
// end.  When the raw longitude gap exceeds 180° one endpoint is shifted
// by a full revolution first, so the curve takes the short way across
// the antimeridian instead of sweeping the long way around the globe.
// numPoints below 1 falls back to 20 segments.
func BuildArc(start, end LatLon, numPoints int) []LatLon {
	if numPoints < 1 {
		numPoints = 20
	}

	lat1, lon1 := start.Lat, start.Lon
	lat2, lon2 := end.Lat, end.Lon

	// Antimeridian correction: move whichever endpoint is "behind"
	// forward one revolution.
	if lon1-lon2 > 180 {
		lon2 += 360
	} else if lon2-lon1 > 180 {
		lon1 += 360
	}

	midLat := (lat1 + lat2) / 2
	midLon := (lon1 + lon2) / 2

	dx := lon2 - lon1
	dy := lat2 - lat1
	dist := math.Sqrt(dx*dx + dy*dy)

	ctrlLat := midLat + dist*curvatureFactor
	if ctrlLat > maxControlLat {
		ctrlLat = maxControlLat
	}
	if ctrlLat < -maxControlLat {
		ctrlLat = -maxControlLat
	}
	ctrlLon := midLon

	points := make([]LatLon, 0, numPoints+1)
	for i := 0; i <= numPoints; i++ {
		t := float64(i) / float64(numPoints)
		inv := 1 - t
		points = append(points, LatLon{
			Lat: inv*inv*lat1 + 2*inv*t*ctrlLat + t*t*lat2,
			Lon: inv*inv*lon1 + 2*inv*t*ctrlLon + t*t*lon2,
		})
	}
	return points
}
