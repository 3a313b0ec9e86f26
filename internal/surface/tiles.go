package surface

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"

	"github.com/woozymasta/energymap/internal/geo"
)

// Background fills areas without tiles.
var Background = color.RGBA{R: 0x0e, G: 0x0e, B: 0x10, A: 0xff}

// TileSource provides base map tiles. Tile columns are already wrapped.
type TileSource interface {
	Tile(ctx context.Context, t geo.Tile) (image.Image, error)
}

// TileLayer is the base map layer. A nil source draws only the background.
type TileLayer struct {
	Source      TileSource
	Attribution string
	Workers     int
}

// NewTileLayer returns a base layer over src.
func NewTileLayer(src TileSource, attribution string) *TileLayer {
	return &TileLayer{Source: src, Attribution: attribution, Workers: 4}
}

// Name implements Layer.
func (l *TileLayer) Name() string { return "tiles" }

type placedTile struct {
	tile geo.Tile
	at   image.Point
	img  image.Image
}

// Draw implements Layer. Missing tiles are logged and left as background.
func (l *TileLayer) Draw(ctx context.Context, dst draw.Image, v View) error {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)
	if l.Source == nil || v.Size.X == 0 || v.Size.Y == 0 {
		return nil
	}

	ox, oy := v.Origin()
	cover := geo.CoverTiles(ox, oy, ox+float64(v.Size.X), oy+float64(v.Size.Y), v.Zoom)

	placed := make([]placedTile, len(cover))
	for i, t := range cover {
		placed[i] = placedTile{
			tile: geo.Tile{Z: t.Z, X: geo.WrapX(t.X, t.Z), Y: t.Y},
			at:   image.Pt(int(float64(t.X*geo.TileSize)-ox), int(float64(t.Y*geo.TileSize)-oy)),
		}
	}

	workers := l.Workers
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				img, err := l.Source.Tile(ctx, placed[i].tile)
				if err != nil {
					log.Debug().Err(err).
						Int("z", placed[i].tile.Z).
						Int("x", placed[i].tile.X).
						Int("y", placed[i].tile.Y).
						Msg("Base tile unavailable")
					continue
				}
				placed[i].img = img
			}
		}()
	}

	for i := range placed {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	for _, p := range placed {
		if p.img == nil {
			continue
		}
		rect := image.Rect(p.at.X, p.at.Y, p.at.X+geo.TileSize, p.at.Y+geo.TileSize)
		if p.img.Bounds().Dx() == geo.TileSize && p.img.Bounds().Dy() == geo.TileSize {
			draw.Draw(dst, rect, p.img, p.img.Bounds().Min, draw.Over)
			continue
		}
		// retina tiles
		xdraw.ApproxBiLinear.Scale(dst, rect, p.img, p.img.Bounds(), draw.Over, nil)
	}

	return nil
}
