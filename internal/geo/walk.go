package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Walk rebuilds a nested GeoJSON coordinate tree with every leaf pair passed
// through t. A leaf is an array whose first two elements are numbers; deeper
// nesting is discovered structurally, so Point, LineString, Polygon and
// MultiPolygon trees are all handled by the same rule.
//
// The input is never modified. Leaves that fail to transform are copied
// unchanged and counted in the returned total. Values that are neither arrays
// nor numbers are returned as they are.
func Walk(coords any, t Transformer) (any, int) {
	switch c := coords.(type) {
	case []any:
		if x, y, ok := pairAny(c); ok {
			return transformAny(c, x, y, t)
		}
		out := make([]any, len(c))
		failed := 0
		for i, child := range c {
			var n int
			out[i], n = Walk(child, t)
			failed += n
		}
		return out, failed

	case []float64:
		out := append([]float64(nil), c...)
		if len(c) < 2 {
			return out, 0
		}
		lon, lat, err := t.Transform(c[0], c[1])
		if err != nil {
			return out, 1
		}
		out[0], out[1] = lon, lat
		return out, 0

	case [][]float64:
		out := make([]any, len(c))
		failed := 0
		for i, child := range c {
			var n int
			out[i], n = Walk(child, t)
			failed += n
		}
		return out, failed
	}

	return coords, 0
}

// WalkDocument reprojects a decoded GeoJSON document (FeatureCollection, Feature,
// Geometry or GeometryCollection) and returns a new document. Members other than
// coordinates are shallow copied; features without geometry pass through.
func WalkDocument(doc map[string]any, t Transformer) (map[string]any, int) {
	if doc == nil {
		return nil, 0
	}

	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}

	failed := 0
	switch doc["type"] {
	case "FeatureCollection":
		features, ok := doc["features"].([]any)
		if !ok {
			return out, 0
		}
		walked := make([]any, len(features))
		for i, f := range features {
			fm, ok := f.(map[string]any)
			if !ok {
				walked[i] = f
				continue
			}
			var n int
			walked[i], n = WalkDocument(fm, t)
			failed += n
		}
		out["features"] = walked

	case "Feature":
		g, ok := doc["geometry"].(map[string]any)
		if !ok {
			return out, 0
		}
		out["geometry"], failed = WalkDocument(g, t)

	case "GeometryCollection":
		geoms, ok := doc["geometries"].([]any)
		if !ok {
			return out, 0
		}
		walked := make([]any, len(geoms))
		for i, g := range geoms {
			gm, ok := g.(map[string]any)
			if !ok {
				walked[i] = g
				continue
			}
			var n int
			walked[i], n = WalkDocument(gm, t)
			failed += n
		}
		out["geometries"] = walked

	default:
		if coords, ok := doc["coordinates"]; ok {
			out["coordinates"], failed = Walk(coords, t)
		}
	}

	return out, failed
}

// Geometry returns a reprojected copy of g. Points that fail to transform keep
// their source coordinates and are counted in the returned total.
func Geometry(g orb.Geometry, t Transformer) (orb.Geometry, int) {
	if g == nil {
		return nil, 0
	}

	failed := 0
	proj := func(p orb.Point) orb.Point {
		lon, lat, err := t.Transform(p[0], p[1])
		if err != nil {
			failed++
			return p
		}
		return orb.Point{lon, lat}
	}

	return project.Geometry(orb.Clone(g), proj), failed
}

func pairAny(c []any) (x, y float64, ok bool) {
	if len(c) < 2 {
		return 0, 0, false
	}
	x, okX := number(c[0])
	y, okY := number(c[1])
	return x, y, okX && okY
}

func transformAny(c []any, x, y float64, t Transformer) ([]any, int) {
	out := make([]any, len(c))
	copy(out, c)

	lon, lat, err := t.Transform(x, y)
	if err != nil {
		return out, 1
	}

	out[0], out[1] = lon, lat
	return out, 0
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
