package surface

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/energymap/internal/geo"
	"github.com/woozymasta/energymap/internal/metrics"
)

var (
	// ErrDisposed is returned by operations on a disposed controller.
	ErrDisposed = errors.New("surface disposed")
	// ErrNotAttached is returned when rendering before a container is attached.
	ErrNotAttached = errors.New("surface not attached")
	// ErrAttached is returned when attaching twice.
	ErrAttached = errors.New("surface already attached")
	// ErrEmptySize is returned when rendering into a zero-size viewport.
	ErrEmptySize = errors.New("surface has zero size")
)

// State is the lifecycle state of a controller.
type State int32

const (
	// Uninitialized controllers have no container; updates are kept pending.
	Uninitialized State = iota
	// Ready controllers own a viewport and apply updates.
	Ready
	// Disposed controllers ignore updates and reject rendering.
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configures a controller.
type Options struct {
	Name string

	// Center is lon, lat. Fallback is used when Center cannot be applied.
	Center       orb.Point
	Zoom         int
	Fallback     orb.Point
	FallbackZoom int
	MaxZoom      int

	Tiles       TileSource
	Attribution string
	Transformer geo.Transformer

	AttachRelayout time.Duration
	UpdateRelayout time.Duration
}

// Controller owns one city's viewport. All viewport mutations run on its
// event loop goroutine; public methods post work to the loop.
type Controller struct {
	opts Options
	log  zerolog.Logger

	state  atomic.Int32
	events chan func()
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
	timers sync.WaitGroup

	// owned by the loop
	viewport  *Viewport
	base      *TileLayer
	data      *FeatureLayer
	current   *geojson.FeatureCollection
	pending   *geojson.FeatureCollection
	scheduled map[uint64]*time.Timer
	timerSeq  uint64
	relayouts int
}

// NewController starts a controller in the Uninitialized state.
func NewController(opts Options) *Controller {
	if opts.Transformer == nil {
		opts.Transformer = geo.UTM31N
	}
	if opts.MaxZoom <= 0 {
		opts.MaxZoom = 19
	}

	c := &Controller{
		opts:   opts,
		log:    log.With().Str("city", opts.Name).Logger(),
		events:    make(chan func()),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		scheduled: make(map[uint64]*time.Timer),
	}
	go c.run()

	return c
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.quit:
			c.teardown()
			return
		}
	}
}

// do runs fn on the loop and waits for it.
func (c *Controller) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case c.events <- func() { fn(); close(finished) }:
	case <-c.quit:
		return ErrDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// Name returns the city name.
func (c *Controller) Name() string { return c.opts.Name }

// State returns the current lifecycle state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Attach binds the controller to a container and moves it to Ready. Data
// received before attaching is applied immediately.
func (c *Controller) Attach(ctx context.Context, container Container) error {
	var err error
	if e := c.do(ctx, func() { err = c.attach(container) }); e != nil {
		return e
	}
	return err
}

func (c *Controller) attach(container Container) error {
	switch c.State() {
	case Disposed:
		return ErrDisposed
	case Ready:
		return ErrAttached
	}

	c.viewport = NewViewport(container, c.opts.MaxZoom)
	c.base = NewTileLayer(c.opts.Tiles, c.opts.Attribution)
	c.viewport.AddLayer(c.base)
	c.resetView()

	if !c.state.CompareAndSwap(int32(Uninitialized), int32(Ready)) {
		return ErrDisposed
	}
	c.log.Debug().Msg("Surface attached")

	c.schedule(c.opts.AttachRelayout)

	if c.pending != nil {
		fc := c.pending
		c.pending = nil
		c.apply(fc)
	}
	return nil
}

// Update replaces the data layer with fc. Updating with the collection already
// shown is a no-op, as is any update after Dispose.
func (c *Controller) Update(ctx context.Context, fc *geojson.FeatureCollection) error {
	err := c.do(ctx, func() {
		switch c.State() {
		case Uninitialized:
			c.pending = fc
		case Ready:
			if fc == c.current {
				return
			}
			c.apply(fc)
		}
	})
	if errors.Is(err, ErrDisposed) {
		return nil
	}
	return err
}

func (c *Controller) apply(fc *geojson.FeatureCollection) {
	for _, l := range c.viewport.Layers() {
		if l != Layer(c.base) {
			c.viewport.RemoveLayer(l)
		}
	}
	c.data = nil
	c.current = fc

	if fc == nil || len(fc.Features) == 0 {
		c.log.Debug().Msg("Empty collection, data layer cleared")
		return
	}

	layer := NewFeatureLayer(fc, c.opts.Transformer)
	for _, s := range layer.Skipped() {
		c.log.Warn().Err(s.Err).Int("feature", s.Index).Msg("Skipping feature")
	}
	if n := len(layer.Skipped()); n > 0 {
		metrics.SkippedFeaturesTotal.WithLabelValues(c.opts.Name).Add(float64(n))
	}
	if n := layer.Fallbacks(); n > 0 {
		metrics.TransformFallbacksTotal.WithLabelValues(c.opts.Name).Add(float64(n))
		c.log.Warn().Int("points", n).Msg("Coordinates left untransformed")
	}

	c.data = layer
	c.viewport.AddLayer(layer)
	c.resetView()

	c.relayout()
	c.viewport.PanBy(0, 0)
	c.schedule(c.opts.UpdateRelayout)

	c.log.Info().Int("features", layer.Len()).Msg("Data layer updated")
}

// resetView re-asserts the fixed city framing, falling back to the built-in
// default when the configured one is rejected.
func (c *Controller) resetView() {
	err := c.viewport.SetView(c.opts.Center, c.opts.Zoom)
	if err == nil {
		return
	}
	c.log.Warn().Err(err).Msg("Falling back to default city view")

	zoom := c.opts.FallbackZoom
	if zoom <= 0 {
		zoom = c.opts.Zoom
	}
	if err := c.viewport.SetView(c.opts.Fallback, zoom); err != nil {
		c.log.Error().Err(err).Msg("Default city view rejected")
	}
}

func (c *Controller) relayout() {
	if c.State() != Ready || c.viewport == nil {
		return
	}
	c.relayouts++
	if c.viewport.InvalidateSize() {
		c.log.Debug().
			Int("width", c.viewport.View().Size.X).
			Int("height", c.viewport.View().Size.Y).
			Msg("Surface size changed")
	}
}

// schedule arms a one-shot relayout. A fired timer forgets itself on the
// loop; its callback becomes a no-op once the controller is disposed.
func (c *Controller) schedule(d time.Duration) {
	if d <= 0 {
		return
	}

	c.timerSeq++
	id := c.timerSeq

	c.timers.Add(1)
	c.scheduled[id] = time.AfterFunc(d, func() {
		defer c.timers.Done()
		select {
		case c.events <- func() {
			delete(c.scheduled, id)
			c.relayout()
		}:
		case <-c.quit:
		}
	})
}

// Resize changes the container size and relayouts. The container must
// implement Resizer.
func (c *Controller) Resize(ctx context.Context, width, height int) error {
	var err error
	e := c.do(ctx, func() {
		if c.State() != Ready {
			err = ErrNotAttached
			return
		}
		r, ok := c.viewport.container.(Resizer)
		if !ok {
			err = fmt.Errorf("surface %s: container is not resizable", c.opts.Name)
			return
		}
		r.Resize(width, height)
		c.relayout()
	})
	if e != nil {
		return e
	}
	return err
}

// Render draws the current layers at the viewport size.
func (c *Controller) Render(ctx context.Context) (image.Image, error) {
	return c.RenderSize(ctx, image.Point{})
}

// RenderSize draws the current layers into an image of the given size, keeping
// the city framing centered. A zero size uses the viewport size. The viewport
// itself is left untouched. The layer stack is captured on the loop and drawn
// outside of it.
func (c *Controller) RenderSize(ctx context.Context, size image.Point) (image.Image, error) {
	if size.X < 0 || size.Y < 0 {
		return nil, fmt.Errorf("surface %s: invalid size %v", c.opts.Name, size)
	}

	var (
		view   View
		layers []Layer
		err    error
	)
	e := c.do(ctx, func() {
		switch c.State() {
		case Uninitialized:
			err = ErrNotAttached
			return
		case Disposed:
			err = ErrDisposed
			return
		}
		view = c.viewport.View()
		layers = c.viewport.Layers()
	})
	if e != nil {
		return nil, e
	}
	if err != nil {
		return nil, err
	}
	if size.X > 0 && size.Y > 0 {
		view.Size = size
	}
	if view.Size.X == 0 || view.Size.Y == 0 {
		return nil, ErrEmptySize
	}

	start := time.Now()
	img := image.NewRGBA(image.Rectangle{Max: view.Size})
	for _, l := range layers {
		if err := l.Draw(ctx, img, view); err != nil {
			return nil, fmt.Errorf("draw %s layer: %w", l.Name(), err)
		}
	}

	metrics.RendersTotal.WithLabelValues(c.opts.Name).Inc()
	metrics.RenderDurationMs.Observe(float64(time.Since(start).Milliseconds()))

	return img, nil
}

// FeatureAt returns the tooltip of the data feature under p (lon, lat).
func (c *Controller) FeatureAt(ctx context.Context, p orb.Point) (string, bool) {
	layer, err := c.DataLayer(ctx)
	if err != nil || layer == nil {
		return "", false
	}
	f, ok := layer.At(p)
	if !ok {
		return "", false
	}
	return f.Tooltip, true
}

// DataLayer returns the current data layer, or nil when none is shown.
func (c *Controller) DataLayer(ctx context.Context) (*FeatureLayer, error) {
	var layer *FeatureLayer
	err := c.do(ctx, func() { layer = c.data })
	return layer, err
}

// Layers returns the names of the layers on the viewport, bottom first.
func (c *Controller) Layers(ctx context.Context) ([]string, error) {
	var names []string
	err := c.do(ctx, func() {
		if c.viewport == nil {
			return
		}
		for _, l := range c.viewport.Layers() {
			names = append(names, l.Name())
		}
	})
	return names, err
}

// View returns the current framing.
func (c *Controller) View(ctx context.Context) (View, error) {
	var v View
	err := c.do(ctx, func() {
		if c.viewport != nil {
			v = c.viewport.View()
		}
	})
	return v, err
}

// Relayouts returns how many relayout passes ran.
func (c *Controller) Relayouts(ctx context.Context) (int, error) {
	var n int
	err := c.do(ctx, func() { n = c.relayouts })
	return n, err
}

// Dispose tears the surface down and stops the loop. Pending relayouts are
// cancelled. Safe to call more than once.
func (c *Controller) Dispose() {
	c.once.Do(func() {
		c.state.Store(int32(Disposed))
		close(c.quit)
		<-c.done
		c.timers.Wait()
		c.log.Debug().Msg("Surface disposed")
	})
}

func (c *Controller) teardown() {
	for id, t := range c.scheduled {
		if t.Stop() {
			c.timers.Done()
		}
		delete(c.scheduled, id)
	}

	if c.viewport != nil {
		for _, l := range c.viewport.Layers() {
			if l != Layer(c.base) {
				c.viewport.RemoveLayer(l)
			}
		}
		c.viewport.Remove()
	}

	c.viewport = nil
	c.base = nil
	c.data = nil
	c.current = nil
	c.pending = nil
}
