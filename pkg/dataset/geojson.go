// Package dataset turns raw GeoJSON feature collections into typed entities,
// choosing synchronous or pooled processing by dataset size, and wraps the
// remote fetch with the TTL cache and in-flight deduplication.
package dataset

import (
	"encoding/json"
	"strings"

	"github.com/geosift/geosift/pkg/entity"
)

// FeatureCollection is the subset of GeoJSON the loader consumes.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one GeoJSON feature with the properties the taxonomy uses.
type Feature struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Geometry   Geometry   `json:"geometry"`
}

// Properties carries the entity attributes of a feature.
type Properties struct {
	Name      string `json:"name"`
	Region    string `json:"region,omitempty"`
	SubRegion string `json:"subRegion,omitempty"`
	Territory string `json:"territory,omitempty"`
}

// Geometry keeps coordinates raw so non-point shapes pass through untouched.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Point decodes the geometry as a GeoJSON [lng, lat] position.
func (g Geometry) Point() (*entity.Coordinates, bool) {
	if g.Type != "Point" || len(g.Coordinates) == 0 {
		return nil, false
	}
	var pos []float64
	if err := json.Unmarshal(g.Coordinates, &pos); err != nil || len(pos) < 2 {
		return nil, false
	}
	return &entity.Coordinates{Lat: pos[1], Lng: pos[0]}, true
}

// convertFeatures builds the immutable entity slice for one taxonomy level.
// Features without a name are skipped. Token forms resolve through the shared
// memo so equal names share one SearchTokens value.
func convertFeatures(typ entity.Type, fc *FeatureCollection, tokens *entity.TokenCache) []entity.Entity {
	ents := make([]entity.Entity, 0, len(fc.Features))
	for _, f := range fc.Features {
		name := strings.TrimSpace(f.Properties.Name)
		if name == "" {
			continue
		}
		e := entity.New(name, typ, tokens)
		e.Region = f.Properties.Region
		e.SubRegion = f.Properties.SubRegion
		e.Territory = f.Properties.Territory
		if pt, ok := f.Geometry.Point(); ok {
			e.Coordinates = pt
		}
		ents = append(ents, e)
	}
	return ents
}
