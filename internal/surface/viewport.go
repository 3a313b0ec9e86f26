// Package surface owns the per-city map surface: a viewport with a base tile
// layer and a replaceable data layer, driven by a single event loop.
package surface

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"

	"github.com/paulmach/orb"

	"github.com/woozymasta/energymap/internal/geo"
)

// Container is the physical area a viewport renders into.
type Container interface {
	Size() image.Point
}

// Resizer is a container whose size can be changed.
type Resizer interface {
	Resize(width, height int)
}

// Frame is an in-memory container. Its size may be zero until the first Resize.
type Frame struct {
	mu   sync.Mutex
	size image.Point
}

// NewFrame returns a frame of the given size.
func NewFrame(width, height int) *Frame {
	f := &Frame{}
	f.Resize(width, height)
	return f
}

// Size returns the current frame size.
func (f *Frame) Size() image.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Resize changes the frame size. Negative values are treated as zero.
func (f *Frame) Resize(width, height int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = image.Pt(max(width, 0), max(height, 0))
}

// Layer is anything drawn on a viewport.
type Layer interface {
	Name() string
	Draw(ctx context.Context, dst draw.Image, v View) error
}

// ViewportError reports a rejected center or zoom.
type ViewportError struct {
	Center orb.Point
	Zoom   int
	Reason string
}

func (e *ViewportError) Error() string {
	return fmt.Sprintf("viewport: cannot center at (%g, %g) zoom %d: %s", e.Center[1], e.Center[0], e.Zoom, e.Reason)
}

// View is an immutable snapshot of a viewport's framing.
type View struct {
	Size   image.Point
	Center orb.Point // lon, lat
	Zoom   int
	Pan    orb.Point // pixel offset applied by PanBy
}

// Origin returns the global pixel coordinates of the top-left corner.
func (v View) Origin() (x, y float64) {
	cx, cy := geo.LonLatToPixel(v.Center[0], v.Center[1], v.Zoom)
	return cx - float64(v.Size.X)/2 + v.Pan[0], cy - float64(v.Size.Y)/2 + v.Pan[1]
}

// ToPixel projects a WGS84 point into view pixel coordinates.
func (v View) ToPixel(p orb.Point) (x, y float64) {
	ox, oy := v.Origin()
	return v.ToPixelFrom(ox, oy, p)
}

// ToPixelFrom is ToPixel with a precomputed origin.
func (v View) ToPixelFrom(ox, oy float64, p orb.Point) (x, y float64) {
	gx, gy := geo.LonLatToPixel(p[0], p[1], v.Zoom)
	return gx - ox, gy - oy
}

// FromPixel converts view pixel coordinates back to WGS84.
func (v View) FromPixel(x, y float64) orb.Point {
	ox, oy := v.Origin()
	lon, lat := geo.PixelToLonLat(ox+x, oy+y, v.Zoom)
	return orb.Point{lon, lat}
}

// Bound returns the geographic extent covered by the view.
func (v View) Bound() orb.Bound {
	tl := v.FromPixel(0, 0)
	br := v.FromPixel(float64(v.Size.X), float64(v.Size.Y))
	return orb.Bound{
		Min: orb.Point{tl[0], br[1]},
		Max: orb.Point{br[0], tl[1]},
	}
}

// Viewport is a map surface bound to a container. It caches the container size
// and only refreshes it on InvalidateSize. It is not safe for concurrent use;
// the owning controller serialises access.
type Viewport struct {
	container Container
	size      image.Point
	center    orb.Point
	zoom      int
	maxZoom   int
	pan       orb.Point
	layers    []Layer
	detached  bool
}

// NewViewport binds a viewport to c. The size is read once here.
func NewViewport(c Container, maxZoom int) *Viewport {
	return &Viewport{
		container: c,
		size:      c.Size(),
		maxZoom:   maxZoom,
	}
}

// SetView centers the viewport and resets any pan offset.
func (v *Viewport) SetView(center orb.Point, zoom int) error {
	if v.detached {
		return &ViewportError{Center: center, Zoom: zoom, Reason: "viewport removed"}
	}
	lon, lat := center[0], center[1]
	switch {
	case math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0):
		return &ViewportError{Center: center, Zoom: zoom, Reason: "non-finite center"}
	case lat < -90 || lat > 90 || lon < -180 || lon > 180:
		return &ViewportError{Center: center, Zoom: zoom, Reason: "center out of range"}
	case zoom < 0 || zoom > v.maxZoom:
		return &ViewportError{Center: center, Zoom: zoom, Reason: fmt.Sprintf("zoom outside [0, %d]", v.maxZoom)}
	}

	v.center = center
	v.zoom = zoom
	v.pan = orb.Point{}
	return nil
}

// PanBy shifts the view by a pixel offset.
func (v *Viewport) PanBy(dx, dy float64) {
	v.pan[0] += dx
	v.pan[1] += dy
}

// InvalidateSize re-reads the container size and reports whether it changed.
func (v *Viewport) InvalidateSize() bool {
	if v.detached {
		return false
	}
	size := v.container.Size()
	if size == v.size {
		return false
	}
	v.size = size
	return true
}

// AddLayer appends l on top of the existing layers.
func (v *Viewport) AddLayer(l Layer) {
	if v.detached {
		return
	}
	v.layers = append(v.layers, l)
}

// RemoveLayer removes l if present.
func (v *Viewport) RemoveLayer(l Layer) {
	for i, existing := range v.layers {
		if existing == l {
			v.layers = append(v.layers[:i], v.layers[i+1:]...)
			return
		}
	}
}

// EachLayer calls fn for a snapshot of the layers, bottom first.
func (v *Viewport) EachLayer(fn func(Layer)) {
	for _, l := range v.Layers() {
		fn(l)
	}
}

// Layers returns a copy of the layer stack, bottom first.
func (v *Viewport) Layers() []Layer {
	return append([]Layer(nil), v.layers...)
}

// View returns the current framing.
func (v *Viewport) View() View {
	return View{Size: v.size, Center: v.center, Zoom: v.zoom, Pan: v.pan}
}

// Bounds returns the geographic extent of the current view.
func (v *Viewport) Bounds() orb.Bound {
	return v.View().Bound()
}

// Remove detaches the viewport from its container and drops all layers.
func (v *Viewport) Remove() {
	v.detached = true
	v.layers = nil
	v.container = nil
}
