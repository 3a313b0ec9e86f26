package server

import (
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/energymap/assets"
	"github.com/woozymasta/energymap/internal/atlas"
	"github.com/woozymasta/energymap/internal/config"
)

// MaxImageSize bounds the requested size of rendered map images.
const MaxImageSize = 2048

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config    *config.Config
	Atlas     *atlas.Atlas
	IndexHTML []byte
	Favicon   []byte
}

// NewServerContext wires handlers to the atlas. The index page is built from
// the embedded assets; on failure a minimal page is served instead.
func NewServerContext(cfg *config.Config, a *atlas.Atlas) *ServerContext {
	index, err := assets.Build()
	if err != nil {
		log.Error().Err(err).Msg("Failed to build index page, serving fallback")
		index = []byte("<!doctype html><title>Energy labels</title><p>Front end unavailable.</p>")
	}

	for _, city := range cfg.Cities {
		log.Debug().
			Str("city", city.Name).
			Strs("aliases", city.Aliases).
			Float64("lat", city.Lat()).
			Float64("lon", city.Lon()).
			Int("zoom", city.Zoom).
			Msg("City registered")
	}

	log.Info().
		Int("cities", len(cfg.Cities)).
		Int("index_bytes", len(index)).
		Msg("Server context initialized successfully")

	return &ServerContext{
		Config:    cfg,
		Atlas:     a,
		IndexHTML: index,
		Favicon:   assets.Favicon,
	}
}
