package loader

import (
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// Save writes a collection to <dir>/<city><suffix>.geojson and returns the path.
func Save(dir, city, suffix string, fc *geojson.FeatureCollection) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, city+suffix+".geojson")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	// We care about write errors on close
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Error().Err(closeErr).Str("path", path).Msg("Failed to close file")
		}
	}()

	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return path, nil
}
