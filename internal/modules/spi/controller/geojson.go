package controller

import (
	"spi-dashboard/internal/modules/spi/types"
)

type geoJSONGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type geoJSONFeature struct {
	Type       string          `json:"type"`
	Geometry   geoJSONGeometry `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Name     string           `json:"name,omitempty"`
	Features []geoJSONFeature `json:"features"`
}

// tableToGeoJSON turns rows with numeric Latitude and Longitude into point
// features. Tables without both columns produce an empty collection.
func tableToGeoJSON(name string, tbl types.Table) geoJSONCollection {
	fc := geoJSONCollection{Type: "FeatureCollection", Name: name, Features: []geoJSONFeature{}}
	latIdx := tbl.Index(types.ColLatitude)
	lonIdx := tbl.Index(types.ColLongitude)
	if latIdx < 0 || lonIdx < 0 {
		return fc
	}
	for _, row := range tbl.Rows {
		lat, okLat := toFloat(row[latIdx])
		lon, okLon := toFloat(row[lonIdx])
		if !okLat || !okLon {
			continue
		}
		props := make(map[string]any, len(tbl.Columns)-2)
		for i, col := range tbl.Columns {
			if i == latIdx || i == lonIdx {
				continue
			}
			props[col] = row[i]
		}
		fc.Features = append(fc.Features, geoJSONFeature{
			Type:       "Feature",
			Geometry:   geoJSONGeometry{Type: "Point", Coordinates: [2]float64{lon, lat}},
			Properties: props,
		})
	}
	return fc
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
