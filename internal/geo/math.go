package geo

import "math"

// TileSize is the edge of a web mercator tile in pixels.
const TileSize = 256

// MaxLat is the latitude limit of the web mercator square.
const MaxLat = 85.05112878

// Tile addresses a single slippy-map tile.
type Tile struct {
	Z, X, Y int
}

// LonLatToPixel converts WGS84 degrees to global web mercator pixel coordinates
// at the given zoom. Latitudes beyond MaxLat are clamped.
func LonLatToPixel(lon, lat float64, zoom int) (x, y float64) {
	if lat > MaxLat {
		lat = MaxLat
	} else if lat < -MaxLat {
		lat = -MaxLat
	}

	worldSize := float64(TileSize) * math.Exp2(float64(zoom))
	x = (lon + 180.0) / 360.0 * worldSize

	latRad := lat * math.Pi / 180.0
	mercatorY := math.Log(math.Tan(math.Pi/4 + latRad/2))
	y = (1 - mercatorY/math.Pi) / 2 * worldSize

	return x, y
}

// PixelToLonLat converts global web mercator pixel coordinates back to WGS84 degrees.
//
// It maps x over the world width to the longitude range [-180, 180]
// and applies an inverse Mercator projection for latitude.
func PixelToLonLat(x, y float64, zoom int) (lon, lat float64) {
	worldSize := float64(TileSize) * math.Exp2(float64(zoom))

	lon = x/worldSize*360.0 - 180.0

	// y: [0..worldSize] -> mercatorY: [PI..-PI]
	mercatorY := math.Pi - 2*math.Pi*y/worldSize

	// Inverse Mercator projection
	latRad := (2.0 * math.Atan(math.Exp(mercatorY))) - (math.Pi * 0.5)
	lat = latRad * (180.0 / math.Pi)

	if lat > MaxLat {
		lat = MaxLat
	} else if lat < -MaxLat {
		lat = -MaxLat
	}

	return lon, lat
}

// CoverTiles lists the tiles intersecting a global pixel rectangle at zoom.
// Columns are returned unwrapped so callers can position them; use WrapX before
// addressing a tile server. Rows outside the world are dropped.
func CoverTiles(minX, minY, maxX, maxY float64, zoom int) []Tile {
	if maxX <= minX || maxY <= minY {
		return nil
	}

	n := 1 << zoom
	x0 := int(math.Floor(minX / TileSize))
	x1 := int(math.Ceil(maxX/TileSize)) - 1
	y0 := int(math.Floor(minY / TileSize))
	y1 := int(math.Ceil(maxY/TileSize)) - 1

	tiles := make([]Tile, 0, (x1-x0+1)*(y1-y0+1))
	for ty := y0; ty <= y1; ty++ {
		if ty < 0 || ty >= n {
			continue
		}
		for tx := x0; tx <= x1; tx++ {
			tiles = append(tiles, Tile{Z: zoom, X: tx, Y: ty})
		}
	}

	return tiles
}

// WrapX normalises a tile column into [0, 2^zoom).
func WrapX(x, zoom int) int {
	n := 1 << zoom
	x %= n
	if x < 0 {
		x += n
	}
	return x
}
