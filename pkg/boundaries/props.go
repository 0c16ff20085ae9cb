package boundaries

import "github.com/paulmach/orb/geojson"

// Boundary datasets disagree on property naming, so every accessor
// walks an ordered list of keys and returns the first usable value.
// The order matters: earlier keys come from the preferred dataset and
// later ones from older fallbacks.

var nameKeys = []string{
	"shapeName", "ADMIN", "NAME", "name",
	"reg_name", "state_name", "province_name",
	"LABEL", "Label",
}

var isoKeys = []string{
	"shapeGroup", "ADM0_A3", "ISO_A3", "ISO3166-1-Alpha-3",
	"reg_istat_code", "code_hasc", "HASC_1",
}

// DisplayName returns the human-readable region name or "Unknown".
func DisplayName(f *geojson.Feature) string {
	for _, key := range nameKeys {
		if v := stringProp(f, key); v != "" {
			return v
		}
	}
	return "Unknown"
}

// ISOCode returns the region's ISO-style code, applying fallback when
// the dataset marks it unavailable with the "-99" sentinel.
func ISOCode(f *geojson.Feature, fallback string) string {
	for _, key := range isoKeys {
		v := stringProp(f, key)
		if v == "" {
			continue
		}
		if v == "-99" {
			if alt := stringProp(f, "ADM0_A3"); alt != "" && alt != "-99" {
				return alt
			}
			if alt := stringProp(f, "SOV_A3"); alt != "" && alt != "-99" {
				return alt
			}
			continue
		}
		return v
	}
	return fallback
}

// StateCode returns the sub-national code used to pick state capitals.
func StateCode(f *geojson.Feature) string {
	return stringProp(f, "shapeISO")
}

func stringProp(f *geojson.Feature, key string) string {
	if f == nil || f.Properties == nil {
		return ""
	}
	v, ok := f.Properties[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
