package surface

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"golang.org/x/image/vector"

	"github.com/woozymasta/energymap/internal/geo"
	"github.com/woozymasta/energymap/internal/style"
)

// Feature is a styled feature in WGS84 coordinates.
type Feature struct {
	ID         any
	Geometry   orb.Geometry
	Bound      orb.Bound
	Style      style.Style
	Tooltip    string
	Properties geojson.Properties
}

// SkippedFeature records a feature dropped while building a layer.
type SkippedFeature struct {
	Index int
	Err   error
}

// FeatureLayer is an immutable styled data layer.
type FeatureLayer struct {
	features  []Feature
	skipped   []SkippedFeature
	fallbacks int
}

// NewFeatureLayer reprojects and styles every feature of fc. A failure in one
// feature drops that feature only. Features without geometry are kept but not drawn.
func NewFeatureLayer(fc *geojson.FeatureCollection, t geo.Transformer) *FeatureLayer {
	l := &FeatureLayer{}
	if fc == nil {
		return l
	}

	l.features = make([]Feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		feat, n, err := buildFeature(f, t)
		if err != nil {
			l.skipped = append(l.skipped, SkippedFeature{Index: i, Err: err})
			continue
		}
		l.fallbacks += n
		l.features = append(l.features, feat)
	}

	return l
}

func buildFeature(f *geojson.Feature, t geo.Transformer) (feat Feature, fallbacks int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("feature panicked: %v", r)
		}
	}()

	if f == nil {
		return Feature{}, 0, errors.New("nil feature")
	}

	g, n := geo.Geometry(f.Geometry, t)

	feat = Feature{
		ID:         f.ID,
		Geometry:   g,
		Style:      style.ForProperties(f.Properties),
		Tooltip:    style.TooltipForProperties(f.Properties),
		Properties: f.Properties.Clone(),
	}
	if g != nil {
		feat.Bound = g.Bound()
	}

	return feat, n, nil
}

// Name implements Layer.
func (l *FeatureLayer) Name() string { return "features" }

// Len returns the number of features kept in the layer.
func (l *FeatureLayer) Len() int { return len(l.features) }

// Features returns the layer features. The slice must not be modified.
func (l *FeatureLayer) Features() []Feature { return l.features }

// Skipped returns the features dropped while building the layer.
func (l *FeatureLayer) Skipped() []SkippedFeature { return l.skipped }

// Fallbacks returns the number of points left in source coordinates.
func (l *FeatureLayer) Fallbacks() int { return l.fallbacks }

// Collection exports the layer as a WGS84 feature collection with "style" and
// "tooltip" properties set on every feature.
func (l *FeatureLayer) Collection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(l.features))
	for _, f := range l.features {
		props := f.Properties.Clone()
		if props == nil {
			props = geojson.Properties{}
		}
		props["style"] = f.Style
		props["tooltip"] = f.Tooltip

		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         f.ID,
			Type:       "Feature",
			Geometry:   f.Geometry,
			Properties: props,
		})
	}
	return fc
}

// At returns the topmost polygonal feature containing p.
func (l *FeatureLayer) At(p orb.Point) (Feature, bool) {
	for i := len(l.features) - 1; i >= 0; i-- {
		f := l.features[i]
		if f.Geometry == nil || !f.Bound.Contains(p) {
			continue
		}
		if contains(f.Geometry, p) {
			return f, true
		}
	}
	return Feature{}, false
}

func contains(g orb.Geometry, p orb.Point) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Ring:
		return planar.RingContains(g, p)
	case orb.Collection:
		for _, sub := range g {
			if contains(sub, p) {
				return true
			}
		}
	}
	return false
}

type paintGroup struct {
	color    color.NRGBA
	weight   float64
	features []*Feature
}

// Draw implements Layer. Features are grouped by paint so each color is
// rasterised in one pass; fills are drawn before outlines.
func (l *FeatureLayer) Draw(ctx context.Context, dst draw.Image, v View) error {
	size := dst.Bounds().Size()
	if size.X == 0 || size.Y == 0 {
		return nil
	}

	visible := v.Bound()
	var fills, strokes []*paintGroup
	fillIdx := map[string]*paintGroup{}
	strokeIdx := map[string]*paintGroup{}

	for i := range l.features {
		f := &l.features[i]
		if f.Geometry == nil || !f.Bound.Intersects(visible) {
			continue
		}

		key := fmt.Sprintf("%s/%g", f.Style.FillColor, f.Style.FillOpacity)
		g, ok := fillIdx[key]
		if !ok {
			g = &paintGroup{color: f.Style.Fill(), weight: f.Style.StrokeWeight}
			fillIdx[key] = g
			fills = append(fills, g)
		}
		g.features = append(g.features, f)

		key = fmt.Sprintf("%s/%g/%g", f.Style.StrokeColor, f.Style.StrokeOpacity, f.Style.StrokeWeight)
		g, ok = strokeIdx[key]
		if !ok {
			g = &paintGroup{color: f.Style.Stroke(), weight: f.Style.StrokeWeight}
			strokeIdx[key] = g
			strokes = append(strokes, g)
		}
		g.features = append(g.features, f)
	}

	r := vector.NewRasterizer(size.X, size.Y)
	p := painter{r: r, v: v}
	p.ox, p.oy = v.Origin()

	pass := func(groups []*paintGroup, paint func(orb.Geometry, float64)) error {
		for _, g := range groups {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.Reset(size.X, size.Y)
			for _, f := range g.features {
				paint(f.Geometry, g.weight)
			}
			r.Draw(dst, dst.Bounds(), image.NewUniform(g.color), image.Point{})
		}
		return nil
	}

	if err := pass(fills, p.fill); err != nil {
		return err
	}
	return pass(strokes, p.stroke)
}
