// Package atlas runs one map surface per configured city and keeps each one
// in sync with its most recent data load.
package atlas

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/energymap/internal/config"
	"github.com/woozymasta/energymap/internal/loader"
	"github.com/woozymasta/energymap/internal/metrics"
	"github.com/woozymasta/energymap/internal/stats"
	"github.com/woozymasta/energymap/internal/surface"
)

var (
	// ErrStale is returned by a load superseded by a newer one for the same city.
	ErrStale = errors.New("load superseded by a newer request")
	// ErrUnknownCity is returned for names that resolve to no configured city.
	ErrUnknownCity = errors.New("unknown city")
	// ErrClosed is returned when reloading after Close.
	ErrClosed = errors.New("atlas closed")
)

// Status is the data load status of a city.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Source loads city collections.
type Source interface {
	Load(ctx context.Context, city string, kind loader.Kind) (*geojson.FeatureCollection, error)
}

// CityState is the externally visible state of one city.
type CityState struct {
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Features  int       `json:"features"`
	Baseline  bool      `json:"baseline"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

type entry struct {
	city config.City
	ctrl *surface.Controller

	// apply serialises surface updates; mu is never held across one
	apply sync.Mutex

	mu       sync.Mutex
	gen      uint64
	state    CityState
	current  *geojson.FeatureCollection
	baseline *geojson.FeatureCollection
	stats    *stats.Snapshot
}

// Atlas owns the per-city controllers.
type Atlas struct {
	cfg    *config.Config
	source Source

	entries map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// New creates one controller per configured city. Controllers stay
// uninitialized until Start.
func New(cfg *config.Config, src Source, tiles surface.TileSource) *Atlas {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Atlas{
		cfg:     cfg,
		source:  src,
		entries: make(map[string]*entry, len(cfg.Cities)),
		ctx:     ctx,
		cancel:  cancel,
	}

	for _, city := range cfg.Cities {
		def := config.Defaults[city.Name]
		ctrl := surface.NewController(surface.Options{
			Name:           city.Name,
			Center:         orb.Point{city.Lon(), city.Lat()},
			Zoom:           city.Zoom,
			Fallback:       orb.Point{def.Lon, def.Lat},
			FallbackZoom:   def.Zoom,
			MaxZoom:        cfg.Tiles.MaxZoom,
			Tiles:          tiles,
			Attribution:    cfg.Attribution,
			AttachRelayout: cfg.Render.AttachRelayout,
			UpdateRelayout: cfg.Render.UpdateRelayout,
		})
		a.entries[city.Name] = &entry{
			city:  city,
			ctrl:  ctrl,
			state: CityState{Status: StatusIdle},
		}
	}

	return a
}

// Start attaches every surface to a frame of the configured render size and
// starts loading all cities concurrently.
func (a *Atlas) Start(ctx context.Context) error {
	for _, city := range a.cfg.Cities {
		e := a.entries[city.Name]
		frame := surface.NewFrame(a.cfg.Render.Width, a.cfg.Render.Height)
		if err := e.ctrl.Attach(ctx, frame); err != nil {
			return fmt.Errorf("attach %s: %w", city.Name, err)
		}
	}

	for _, city := range a.cfg.Cities {
		if err := a.Reload(city.Name); err != nil {
			return err
		}
	}

	log.Info().Int("cities", len(a.cfg.Cities)).Msg("Atlas started")
	return nil
}

// Reload starts a background load of city. An older load still in flight is
// discarded when it completes.
func (a *Atlas) Reload(city string) error {
	if _, ok := a.entries[city]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCity, city)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.Load(a.ctx, city); err != nil && !errors.Is(err, ErrStale) {
			log.Error().Err(err).Str("city", city).Msg("Failed to load city data")
		}
	}()

	return nil
}

// Load fetches the current and baseline data of city and applies them to its
// surface. On a terminal failure the data layer is cleared.
func (a *Atlas) Load(ctx context.Context, city string) error {
	e, ok := a.entries[city]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCity, city)
	}

	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.state.Status = StatusLoading
	e.state.Error = ""
	e.mu.Unlock()

	current, err := a.source.Load(ctx, city, loader.Current)

	var baseline *geojson.FeatureCollection
	if err == nil {
		var berr error
		baseline, berr = a.source.Load(ctx, city, loader.Baseline)
		if berr != nil {
			baseline = nil
			if !errors.Is(berr, loader.ErrNoSource) {
				log.Warn().Err(berr).Str("city", city).Msg("Baseline unavailable, differences disabled")
			}
		}
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		metrics.StaleLoadsTotal.WithLabelValues(city).Inc()
		log.Debug().Str("city", city).Uint64("generation", gen).Msg("Discarding stale load result")
		return ErrStale
	}

	e.stats = nil
	e.state.UpdatedAt = time.Now()

	if err != nil {
		metrics.LoadFailuresTotal.WithLabelValues(city).Inc()
		e.current, e.baseline = nil, nil
		e.state = CityState{Status: StatusError, Error: err.Error(), UpdatedAt: e.state.UpdatedAt}
		current = nil
	} else {
		e.current, e.baseline = current, baseline
		e.state.Status = StatusSuccess
		e.state.Features = len(current.Features)
		e.state.Baseline = baseline != nil
	}
	e.mu.Unlock()

	if uerr := e.update(ctx, gen, current); uerr != nil {
		if err != nil {
			log.Warn().Err(uerr).Str("city", city).Msg("Failed to clear data layer")
			return err
		}
		return uerr
	}
	return err
}

// update hands fc to the surface unless a newer load has committed since gen.
func (e *entry) update(ctx context.Context, gen uint64, fc *geojson.FeatureCollection) error {
	e.apply.Lock()
	defer e.apply.Unlock()

	e.mu.Lock()
	stale := gen != e.gen
	e.mu.Unlock()
	if stale {
		return nil
	}

	return e.ctrl.Update(ctx, fc)
}

// Resolve maps a city name or alias to its configured name.
func (a *Atlas) Resolve(name string) (string, bool) {
	city, ok := a.cfg.City(name)
	if !ok {
		return "", false
	}
	return city.Name, true
}

// Cities returns the configured cities in display order.
func (a *Atlas) Cities() []config.City {
	return a.cfg.Cities
}

// Controller returns the surface controller of city.
func (a *Atlas) Controller(city string) (*surface.Controller, bool) {
	e, ok := a.entries[city]
	if !ok {
		return nil, false
	}
	return e.ctrl, true
}

// Status returns the load state of city.
func (a *Atlas) Status(city string) (CityState, bool) {
	e, ok := a.entries[city]
	if !ok {
		return CityState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Statistics returns the snapshot of the data currently applied to city.
// The snapshot is computed once per loaded dataset and must not be modified.
func (a *Atlas) Statistics(city string) (stats.Snapshot, bool) {
	e, ok := a.entries[city]
	if !ok {
		return stats.Snapshot{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stats == nil {
		s := stats.Aggregate(e.current, e.baseline)
		e.stats = &s
	}
	return *e.stats, true
}

// Legend returns the legend rows of city.
func (a *Atlas) Legend(city string) (stats.LegendView, bool) {
	s, ok := a.Statistics(city)
	if !ok {
		return stats.LegendView{}, false
	}
	return stats.Legend(s), true
}

// Close cancels pending loads, waits for them and disposes every surface.
func (a *Atlas) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
	for _, e := range a.entries {
		e.ctrl.Dispose()
	}
}
