package models

import "encoding/json"

// Point is a GeoJSON Point geometry.
// GeoJSON coordinate order is [lng, lat], not [lat, lng].
type Point struct {
	Coordinates [2]float64
}

// PointAt builds a Point from a Location.
func PointAt(loc Location) Point {
	return Point{Coordinates: [2]float64{loc.Lng, loc.Lat}}
}

// MarshalJSON implements json.Marshaler for API responses.
func (p Point) MarshalJSON() ([]byte, error) {
	geom := struct {
		Type        string     `json:"type"`
		Coordinates [2]float64 `json:"coordinates"`
	}{
		Type:        "Point",
		Coordinates: p.Coordinates,
	}
	return json.Marshal(geom)
}

// LineString is a GeoJSON LineString geometry, used for customer-to-host connections.
type LineString struct {
	Coordinates [][2]float64
}

// LineBetween builds a two-point line from a to b.
func LineBetween(a, b Location) LineString {
	return LineString{Coordinates: [][2]float64{{a.Lng, a.Lat}, {b.Lng, b.Lat}}}
}

// MarshalJSON implements json.Marshaler for API responses.
func (l LineString) MarshalJSON() ([]byte, error) {
	geom := struct {
		Type        string       `json:"type"`
		Coordinates [][2]float64 `json:"coordinates"`
	}{
		Type:        "LineString",
		Coordinates: l.Coordinates,
	}
	return json.Marshal(geom)
}

// Feature is a GeoJSON Feature. Geometry is a Point or LineString.
type Feature struct {
	Geometry   interface{}            `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
	Type       string                 `json:"type"`
}

// NewFeature wraps a geometry with properties.
func NewFeature(geometry interface{}, properties map[string]interface{}) Feature {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	return Feature{
		Type:       "Feature",
		Geometry:   geometry,
		Properties: properties,
	}
}

// FeatureCollection is a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection returns a collection that always serializes features as an array.
func NewFeatureCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
