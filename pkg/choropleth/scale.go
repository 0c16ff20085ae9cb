// Package choropleth builds the discrete colour ramp used to shade
// admin1 regions by their aggregated forecast totals.  The ramp is
// indexed by integer magnitude rather than interpolated continuously:
// forecast totals are small counts, and a handful of clearly distinct
// shades reads better on a map than a smooth gradient.
package choropleth

import (
	"fmt"
	"math"
)

// noDataColor fills regions without a resolved forecast row.
const noDataColor = "#ffffff"

// Ramp endpoints, light to dark.
var (
	rampStart = [3]int{219, 234, 254} // #dbeafe
	rampEnd   = [3]int{30, 58, 138}   // #1e3a8a
)

// BuildScale returns maxValue+1 colours: index 0 is the no-data colour,
// indices 1..max interpolate linearly between the fixed endpoints so
// the ramp darkens monotonically.  maxValue is rounded and clamped to
// at least 1, so the smallest useful scale is [noData, darkest].
func BuildScale(maxValue float64) []string {
	max := int(math.Round(maxValue))
	if max < 1 {
		max = 1
	}
	colors := make([]string, 0, max+1)
	colors = append(colors, noDataColor)
	for i := 1; i <= max; i++ {
		t := 1.0
		if max > 1 {
			t = float64(i-1) / float64(max-1)
		}
		r := int(math.Round(float64(rampStart[0]) + float64(rampEnd[0]-rampStart[0])*t))
		g := int(math.Round(float64(rampStart[1]) + float64(rampEnd[1]-rampStart[1])*t))
		b := int(math.Round(float64(rampStart[2]) + float64(rampEnd[2]-rampStart[2])*t))
		colors = append(colors, fmt.Sprintf("rgb(%d, %d, %d)", r, g, b))
	}
	return colors
}

// ColorFor picks the ramp entry for a value.  Values round to the
// nearest integer, anything at or below zero maps to the no-data
// colour, and values beyond the built range clamp to the darkest shade
// instead of erroring.
func ColorFor(value float64, colors []string) string {
	if len(colors) == 0 {
		return noDataColor
	}
	idx := int(math.Round(value))
	if idx <= 0 {
		return colors[0]
	}
	if idx > len(colors)-1 {
		idx = len(colors) - 1
	}
	return colors[idx]
}
