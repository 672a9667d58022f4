package mapitem

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Cartographic is a position in degrees and metres above the ellipsoid.
type Cartographic struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Height    float64 `json:"height"`
}

// EntityStyle holds resolved simple-style drawing parameters.
type EntityStyle struct {
	MarkerColor    string   `json:"markerColor,omitempty"`
	MarkerSize     float64  `json:"markerSize,omitempty"`
	MarkerSymbol   string   `json:"markerSymbol,omitempty"`
	MarkerURL      string   `json:"markerUrl,omitempty"`
	MarkerOpacity  float64  `json:"markerOpacity,omitempty"`
	Stroke         string   `json:"stroke,omitempty"`
	StrokeWidth    float64  `json:"strokeWidth,omitempty"`
	StrokeOpacity  float64  `json:"strokeOpacity,omitempty"`
	Fill           string   `json:"fill,omitempty"`
	FillOpacity    float64  `json:"fillOpacity,omitempty"`
	ExtrudedHeight *float64 `json:"extrudedHeight,omitempty"`
	ClampToGround  bool     `json:"clampToGround,omitempty"`
}

// Entity is one drawable object of a DataSource.
type Entity struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	Geometry     orb.Geometry   `json:"-"`
	Position     *Cartographic  `json:"position,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
	Description  string         `json:"description,omitempty"`
	Availability *TimeInterval  `json:"availability,omitempty"`
	Style        EntityStyle    `json:"style"`
	Packet       map[string]any `json:"packet,omitempty"`
}

// MarshalJSON encodes the geometry as a GeoJSON geometry object.
func (e Entity) MarshalJSON() ([]byte, error) {
	type alias Entity
	var g *geojson.Geometry
	if e.Geometry != nil {
		g = geojson.NewGeometry(e.Geometry)
	}
	return json.Marshal(struct {
		alias
		Geometry *geojson.Geometry `json:"geometry,omitempty"`
	}{alias(e), g})
}

// AvailableAt reports whether the entity should be shown at t. Entities
// without availability are always shown.
func (e Entity) AvailableAt(t time.Time) bool {
	return e.Availability == nil || e.Availability.Contains(t)
}

// DataSource is a named collection of entities with an optional clock.
// PickOnly data sources carry attributes for feature picking but draw
// nothing; they accompany vector tile imagery.
type DataSource struct {
	Name     string   `json:"name"`
	Entities []Entity `json:"entities"`
	Clock    *Clock   `json:"clock,omitempty"`
	Show     bool     `json:"show"`
	PickOnly bool     `json:"pickOnly,omitempty"`
}

// Kind implements MapItem.
func (*DataSource) Kind() Kind { return KindData }

// Entity returns the entity with the given id.
func (d *DataSource) Entity(id string) (Entity, bool) {
	for _, e := range d.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// Bound returns the union of all entity geometries and positions.
func (d *DataSource) Bound() (orb.Bound, bool) {
	var b orb.Bound
	found := false
	extend := func(nb orb.Bound) {
		if !found {
			b, found = nb, true
			return
		}
		b = b.Union(nb)
	}
	for _, e := range d.Entities {
		switch {
		case e.Geometry != nil:
			extend(e.Geometry.Bound())
		case e.Position != nil:
			p := orb.Point{e.Position.Longitude, e.Position.Latitude}
			extend(p.Bound())
		}
	}
	return b, found
}
