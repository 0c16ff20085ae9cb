// Package forecast paints a monthly forecast dataset over the state
// layer as a choropleth.  Row names arrive from an external producer
// with its own spelling habits, so every row goes through the fuzzy
// admin name resolver; rows that fail to resolve are dropped from the
// aggregation rather than reported per row.
package forecast

import (
	"context"

	"world-pulse-map/pkg/adminnames"
	"world-pulse-map/pkg/choropleth"
	"world-pulse-map/pkg/navigation"
	"world-pulse-map/pkg/render"
)

const fillOpacity = 0.75

// Row is one admin1 forecast line.
type Row struct {
	Admin1   string  `json:"admin1"`
	Total    float64 `json:"total"`
	Battles  float64 `json:"battles_forecast,omitempty"`
	ERV      float64 `json:"erv_forecast,omitempty"`
	Violence float64 `json:"vac_forecast,omitempty"`
}

// Dataset is the forecast for one month.
type Dataset struct {
	Label string `json:"label"`
	Rows  []Row  `json:"rows"`
}

// Summary reports how an application went.  Dropped counts rows whose
// admin1 name could not be resolved with confidence.
type Summary struct {
	Applied  bool    `json:"applied"`
	Matched  int     `json:"matched"`
	Dropped  int     `json:"dropped"`
	MaxValue float64 `json:"maxValue"`
	Colors   int     `json:"colors"`
}

// Apply aggregates the dataset onto the currently rendered state layer
// and recolors it.  Outside level 1 there is nothing to paint and the
// call clears any previous choropleth instead.
func Apply(ctx context.Context, nav *navigation.Controller, ds Dataset) Summary {
	layer, lookup, level := nav.LayerSnapshot(ctx)
	if level != 1 || lookup == nil {
		nav.ApplyFills(ctx, nil)
		return Summary{}
	}

	totals := make(map[string]float64)
	var matched, dropped int
	for _, row := range ds.Rows {
		canonical, ok := lookup.Resolve(row.Admin1)
		if !ok {
			dropped++
			continue
		}
		totals[canonical] += row.Total
		matched++
	}

	var maxValue float64
	for _, v := range totals {
		if v > maxValue {
			maxValue = v
		}
	}
	colors := choropleth.BuildScale(maxValue)

	fills := make(map[string]render.Style, len(layer.Shapes))
	for _, shape := range layer.Shapes {
		total := totals[adminnames.Normalize(shape.Name)]
		fills[shape.Name] = render.Style{
			FillColor:   choropleth.ColorFor(total, colors),
			FillOpacity: fillOpacity,
			Color:       shape.Style.Color,
			Weight:      shape.Style.Weight,
		}
	}
	nav.ApplyFills(ctx, fills)

	return Summary{
		Applied:  true,
		Matched:  matched,
		Dropped:  dropped,
		MaxValue: maxValue,
		Colors:   len(colors),
	}
}

// Clear removes the choropleth and restores base styling.
func Clear(ctx context.Context, nav *navigation.Controller) {
	nav.ApplyFills(ctx, nil)
}
