// Package loader fetches per-city GeoJSON collections from a directory or an
// HTTP base URL with bounded retries.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/energymap/internal/config"
	"github.com/woozymasta/energymap/internal/geo"
	"github.com/woozymasta/energymap/internal/metrics"
)

// Accept is sent with every HTTP request.
const Accept = "application/geo+json, application/json"

var (
	// ErrNotFound marks a missing resource. It is never retried.
	ErrNotFound = errors.New("resource not found")
	// ErrNoSource is returned for a baseline that is not configured.
	ErrNoSource = errors.New("no source configured")
)

// Kind selects the current or the baseline dataset.
type Kind int

const (
	Current Kind = iota
	Baseline
)

func (k Kind) String() string {
	if k == Baseline {
		return "baseline"
	}
	return "current"
}

// LoadError is a terminal load failure for one city.
type LoadError struct {
	City     string
	Source   string
	Attempts int
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s from %s failed after %d attempt(s): %v", e.City, e.Source, e.Attempts, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Resource overrides the derived locations of one city.
type Resource struct {
	Current  string
	Baseline string
}

// Loader resolves and fetches city collections.
type Loader struct {
	// Base is a directory or an http(s) URL prefix.
	Base           string
	CurrentSuffix  string
	BaselineSuffix string
	Resources      map[string]Resource

	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration

	Client *http.Client
}

// New builds a loader from configuration.
func New(cfg *config.Config, client *http.Client) *Loader {
	if client == nil {
		client = http.DefaultClient
	}

	l := &Loader{
		Base:           cfg.Data.Base,
		CurrentSuffix:  cfg.Data.Suffix,
		BaselineSuffix: cfg.Data.BaselineSuffix,
		Resources:      make(map[string]Resource),
		Timeout:        cfg.Loader.Timeout,
		Attempts:       cfg.Loader.Attempts,
		Backoff:        cfg.Loader.Backoff,
		Client:         client,
	}
	for _, city := range cfg.Cities {
		if city.Data != "" || city.Baseline != "" {
			l.Resources[city.Name] = Resource{Current: city.Data, Baseline: city.Baseline}
		}
	}

	return l
}

// Source returns the location of a city dataset.
func (l *Loader) Source(city string, kind Kind) (string, bool) {
	res := l.Resources[city]

	override, suffix := res.Current, l.CurrentSuffix
	if kind == Baseline {
		override, suffix = res.Baseline, l.BaselineSuffix
		if override == "" && suffix == "" {
			return "", false
		}
	}
	if override != "" {
		return override, true
	}

	name := city + suffix + ".geojson"
	if isURL(l.Base) {
		return strings.TrimSuffix(l.Base, "/") + "/" + url.PathEscape(name), true
	}
	return filepath.Join(l.Base, name), true
}

// Load fetches and decodes a city dataset. Each attempt is bounded by Timeout;
// failed attempts are retried with a doubling backoff, except for missing
// resources. The returned error is a *LoadError.
func (l *Loader) Load(ctx context.Context, city string, kind Kind) (*geojson.FeatureCollection, error) {
	src, ok := l.Source(city, kind)
	if !ok {
		return nil, &LoadError{City: city, Source: kind.String(), Err: ErrNoSource}
	}

	attempts := max(l.Attempts, 1)
	backoff := l.Backoff
	logger := log.With().Str("city", city).Str("source", src).Logger()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		metrics.LoadAttemptsTotal.WithLabelValues(city).Inc()

		fc, err := l.attempt(ctx, src)
		if err == nil {
			logger.Debug().Int("attempt", attempt).Int("features", len(fc.Features)).Msg("Collection loaded")
			return fc, nil
		}
		lastErr = err

		if errors.Is(err, ErrNotFound) || ctx.Err() != nil || attempt == attempts {
			return nil, &LoadError{City: city, Source: src, Attempts: attempt, Err: lastErr}
		}

		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("Load attempt failed, retrying")

		if err := sleep(ctx, backoff); err != nil {
			return nil, &LoadError{City: city, Source: src, Attempts: attempt, Err: err}
		}
		backoff *= 2
	}

	return nil, &LoadError{City: city, Source: src, Attempts: attempts, Err: lastErr}
}

func (l *Loader) attempt(ctx context.Context, src string) (*geojson.FeatureCollection, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	data, err := l.read(ctx, src)
	if err != nil {
		return nil, err
	}

	return geo.DecodeCollection(data)
}

func (l *Loader) read(ctx context.Context, src string) ([]byte, error) {
	if !isURL(src) {
		data, err := os.ReadFile(src)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", src, ErrNotFound)
		}
		return data, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", Accept)

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", src, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
