package surface

import (
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/image/vector"
)

// painter converts WGS84 geometries into rasteriser paths for one view.
// Fills use a fixed winding (outer rings one way, holes the other) so that
// overlapping shapes of one pass accumulate instead of cancelling.
type painter struct {
	r      *vector.Rasterizer
	v      View
	ox, oy float64
}

func (p *painter) pixel(pt orb.Point) (float32, float32) {
	x, y := p.v.ToPixelFrom(p.ox, p.oy, pt)
	return float32(x), float32(y)
}

func (p *painter) fill(g orb.Geometry, weight float64) {
	switch g := g.(type) {
	case orb.Point:
		p.dot(g, weight)
	case orb.MultiPoint:
		for _, pt := range g {
			p.dot(pt, weight)
		}
	case orb.Ring:
		p.ring(g, orb.CCW)
	case orb.Polygon:
		p.polygon(g)
	case orb.MultiPolygon:
		for _, poly := range g {
			p.polygon(poly)
		}
	case orb.Collection:
		for _, sub := range g {
			p.fill(sub, weight)
		}
	}
}

func (p *painter) polygon(poly orb.Polygon) {
	for i, ring := range poly {
		if i == 0 {
			p.ring(ring, orb.CCW)
		} else {
			p.ring(ring, orb.CW)
		}
	}
}

func (p *painter) ring(ring orb.Ring, want orb.Orientation) {
	if len(ring) < 3 {
		return
	}

	n := len(ring)
	at := func(i int) orb.Point { return ring[i] }
	if ring.Orientation() != want {
		at = func(i int) orb.Point { return ring[n-1-i] }
	}

	x, y := p.pixel(at(0))
	p.r.MoveTo(x, y)
	for i := 1; i < n; i++ {
		x, y = p.pixel(at(i))
		p.r.LineTo(x, y)
	}
	p.r.ClosePath()
}

func (p *painter) dot(pt orb.Point, weight float64) {
	half := float32(weight + 2)
	x, y := p.pixel(pt)
	p.r.MoveTo(x-half, y-half)
	p.r.LineTo(x-half, y+half)
	p.r.LineTo(x+half, y+half)
	p.r.LineTo(x+half, y-half)
	p.r.ClosePath()
}

func (p *painter) stroke(g orb.Geometry, weight float64) {
	switch g := g.(type) {
	case orb.LineString:
		p.line(g, weight, false)
	case orb.MultiLineString:
		for _, ls := range g {
			p.line(ls, weight, false)
		}
	case orb.Ring:
		p.line(orb.LineString(g), weight, true)
	case orb.Polygon:
		for _, ring := range g {
			p.line(orb.LineString(ring), weight, true)
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			p.stroke(poly, weight)
		}
	case orb.Collection:
		for _, sub := range g {
			p.stroke(sub, weight)
		}
	}
}

// line outlines every segment as a quad of the given width. Each quad is
// emitted with the same winding relative to its direction.
func (p *painter) line(ls orb.LineString, weight float64, closed bool) {
	if len(ls) < 2 || weight <= 0 {
		return
	}
	half := weight / 2

	segment := func(a, b orb.Point) {
		ax, ay := p.v.ToPixelFrom(p.ox, p.oy, a)
		bx, by := p.v.ToPixelFrom(p.ox, p.oy, b)
		dx, dy := bx-ax, by-ay
		length := math.Hypot(dx, dy)
		if length == 0 {
			return
		}
		nx, ny := -dy/length*half, dx/length*half

		p.r.MoveTo(float32(ax+nx), float32(ay+ny))
		p.r.LineTo(float32(bx+nx), float32(by+ny))
		p.r.LineTo(float32(bx-nx), float32(by-ny))
		p.r.LineTo(float32(ax-nx), float32(ay-ny))
		p.r.ClosePath()
	}

	for i := 1; i < len(ls); i++ {
		segment(ls[i-1], ls[i])
	}
	if closed && ls[0] != ls[len(ls)-1] {
		segment(ls[len(ls)-1], ls[0])
	}
}
