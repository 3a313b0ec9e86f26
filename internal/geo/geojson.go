// Package geo handles coordinate reprojection and geographic data structures.
package geo

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Report summarises a collection reprojection.
type Report struct {
	Features    int // features in the collection
	Transformed int // features with a geometry
	Fallbacks   int // points left in source coordinates
}

// ReprojectCollection returns a new collection with every feature geometry
// reprojected by t. Feature order, IDs and properties are preserved; properties
// are cloned so the result shares no mutable state with fc.
func ReprojectCollection(fc *geojson.FeatureCollection, t Transformer) (*geojson.FeatureCollection, Report) {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out, Report{}
	}

	out.ExtraMembers = fc.ExtraMembers.Clone()
	out.Features = make([]*geojson.Feature, 0, len(fc.Features))

	rep := Report{Features: len(fc.Features)}
	for _, f := range fc.Features {
		nf, n := ReprojectFeature(f, t)
		if f != nil && f.Geometry != nil {
			rep.Transformed++
		}
		rep.Fallbacks += n
		out.Features = append(out.Features, nf)
	}

	return out, rep
}

// ReprojectFeature returns a reprojected copy of f.
func ReprojectFeature(f *geojson.Feature, t Transformer) (*geojson.Feature, int) {
	if f == nil {
		return nil, 0
	}

	g, failed := Geometry(f.Geometry, t)

	nf := &geojson.Feature{
		ID:         f.ID,
		Type:       f.Type,
		Geometry:   g,
		Properties: f.Properties.Clone(),
	}
	if nf.Type == "" {
		nf.Type = "Feature"
	}

	return nf, failed
}

// DecodeCollection parses a GeoJSON FeatureCollection document.
func DecodeCollection(data []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if fc.Features == nil {
		return nil, fmt.Errorf("decode feature collection: missing features array")
	}

	return fc, nil
}
