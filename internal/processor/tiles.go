// Package processor downloads, converts and caches base map tiles.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	xwebp "golang.org/x/image/webp"

	"github.com/woozymasta/energymap/internal/config"
	"github.com/woozymasta/energymap/internal/geo"
	"github.com/woozymasta/energymap/internal/metrics"
)

var (
	// ErrNoTileSource is returned on a cache miss without a tile URL.
	ErrNoTileSource = errors.New("no tile source configured")
	// ErrTileNotFound is returned for tiles the server does not have.
	ErrTileNotFound = errors.New("tile not found")
)

// TileCache serves base map tiles from a disk cache, downloading and
// converting them to WebP on a miss.
type TileCache struct {
	Client      *http.Client
	URLTemplate string
	Subdomains  string
	Dir         string
	Quality     int
	Retina      bool
}

// NewTileCache builds a tile cache from configuration.
func NewTileCache(cfg config.Tiles, client *http.Client) *TileCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &TileCache{
		Client:      client,
		URLTemplate: cfg.URL,
		Subdomains:  cfg.Subdomains,
		Dir:         cfg.CacheDir,
		Quality:     cfg.Quality,
	}
}

// Path returns the cache file of a tile.
func (c *TileCache) Path(t geo.Tile) string {
	return filepath.Join(
		c.Dir,
		strconv.Itoa(t.Z),
		strconv.Itoa(t.X),
		strconv.Itoa(t.Y)+".webp")
}

// Tile implements surface.TileSource.
func (c *TileCache) Tile(ctx context.Context, t geo.Tile) (image.Image, error) {
	if c.Dir != "" {
		if img, err := readTile(c.Path(t)); err == nil {
			metrics.TileFetchesTotal.WithLabelValues("hit").Inc()
			return img, nil
		}
	}

	img, err := c.download(ctx, t)
	if err != nil {
		if errors.Is(err, ErrTileNotFound) {
			metrics.TileFetchesTotal.WithLabelValues("miss").Inc()
		} else {
			metrics.TileFetchesTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	metrics.TileFetchesTotal.WithLabelValues("download").Inc()

	if c.Dir != "" {
		if err := c.store(c.Path(t), img); err != nil {
			log.Warn().Err(err).Str("path", c.Path(t)).Msg("Failed to cache tile")
		}
	}

	return img, nil
}

func readTile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return xwebp.Decode(f)
}

func (c *TileCache) download(ctx context.Context, t geo.Tile) (image.Image, error) {
	if c.URLTemplate == "" {
		return nil, ErrNoTileSource
	}

	url := c.BuildURL(t)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		log.Trace().Str("url", url).Msg("Tile not found (404)")
		return nil, ErrTileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code %d", resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(bodyBytes))
	if err != nil {
		log.Trace().Err(err).Str("url", url).Msg("Failed to decode image")
		return nil, fmt.Errorf("decode tile: %w", err)
	}

	// Filter out empty/1px tiles often returned by map servers for OOB areas
	if img.Bounds().Dx() <= 1 {
		log.Trace().Str("url", url).Msg("Filtered empty tile")
		return nil, ErrTileNotFound
	}

	return img, nil
}

func (c *TileCache) store(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	quality := c.Quality
	if quality <= 0 {
		quality = 80
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: false, Quality: float32(quality)}); err != nil {
		return err
	}

	// readers must never see a partial tile
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// BuildURL expands {s}, {z}, {x}, {y}, {r} and {tms_y} in the URL template.
func (c *TileCache) BuildURL(t geo.Tile) string {
	s := strings.ReplaceAll(c.URLTemplate, "{z}", strconv.Itoa(t.Z))
	s = strings.ReplaceAll(s, "{x}", strconv.Itoa(t.X))
	s = strings.ReplaceAll(s, "{y}", strconv.Itoa(t.Y))

	if strings.Contains(s, "{tms_y}") {
		maxCoord := (1 << t.Z) - 1
		tmsY := maxCoord - t.Y
		s = strings.ReplaceAll(s, "{tms_y}", strconv.Itoa(tmsY))
	}

	if strings.Contains(s, "{s}") {
		sub := ""
		if n := len(c.Subdomains); n > 0 {
			i := (t.X + t.Y) % n
			if i < 0 {
				i += n
			}
			sub = c.Subdomains[i : i+1]
		}
		s = strings.ReplaceAll(s, "{s}", sub)
	}

	r := ""
	if c.Retina {
		r = "@2x"
	}
	return strings.ReplaceAll(s, "{r}", r)
}

// Probe checks a few tiles (start, middle, end) to see whether the source
// serves the given set.
func (c *TileCache) Probe(ctx context.Context, tiles []geo.Tile) bool {
	probes := []geo.Tile{}
	if len(tiles) > 0 {
		probes = append(probes, tiles[0])
	}
	if len(tiles) > 10 {
		probes = append(probes, tiles[len(tiles)/2])
	}
	if len(tiles) > 1 {
		probes = append(probes, tiles[len(tiles)-1])
	}

	for _, p := range probes {
		if _, err := c.download(ctx, p); err == nil {
			return true
		}
	}

	return false
}

type job struct {
	Tile geo.Tile
}

type result struct {
	Tile  geo.Tile
	Valid bool
}

// Prefetch fills the cache for tiles with a pool of workers and returns the
// tiles that are now cached. Existing files are kept unless force is set.
func Prefetch(ctx context.Context, cache *TileCache, tiles []geo.Tile, concurrency int, force bool) []geo.Tile {
	if concurrency <= 0 {
		concurrency = 1
	}

	jobs := make(chan job, len(tiles))
	results := make(chan result, len(tiles))

	for _, t := range tiles {
		jobs <- job{Tile: t}
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					results <- result{Tile: j.Tile}
					continue
				}

				if !force {
					if info, err := os.Stat(cache.Path(j.Tile)); err == nil && info.Size() > 0 {
						results <- result{Tile: j.Tile, Valid: true}
						continue
					}
				}

				img, err := cache.download(ctx, j.Tile)
				if err == nil {
					err = cache.store(cache.Path(j.Tile), img)
				}
				if err != nil {
					log.Trace().
						Err(err).
						Str("url", cache.BuildURL(j.Tile)).
						Msg("Failed to download tile")
				}
				results <- result{Tile: j.Tile, Valid: err == nil}
			}
		}()
	}
	wg.Wait()
	close(results)

	var valid []geo.Tile
	for res := range results {
		if res.Valid {
			valid = append(valid, res.Tile)
		}
	}

	return valid
}

// CityTiles lists the wrapped tiles covering a city's fixed view of the given
// size, extended by margin pixels on every side.
func CityTiles(city config.City, width, height, margin int) []geo.Tile {
	cx, cy := geo.LonLatToPixel(city.Lon(), city.Lat(), city.Zoom)
	halfW := float64(width)/2 + float64(margin)
	halfH := float64(height)/2 + float64(margin)

	cover := geo.CoverTiles(cx-halfW, cy-halfH, cx+halfW, cy+halfH, city.Zoom)

	seen := make(map[geo.Tile]bool, len(cover))
	tiles := make([]geo.Tile, 0, len(cover))
	for _, t := range cover {
		t.X = geo.WrapX(t.X, t.Z)
		if seen[t] {
			continue
		}
		seen[t] = true
		tiles = append(tiles, t)
	}

	return tiles
}
