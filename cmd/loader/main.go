package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/woozymasta/energymap/internal/config"
	"github.com/woozymasta/energymap/internal/loader"
	"github.com/woozymasta/energymap/internal/logger"
	"github.com/woozymasta/energymap/internal/processor"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	EnvFile     string   `short:"e" long:"env-file"     env:"ENV_FILE"       description:"Optional .env file" default:".env"`
	ConfigFile  string   `short:"c" long:"config"       env:"CONFIG_FILE"    description:"Path to configuration file" default:"config.yaml"`
	Source      string   `short:"s" long:"source"       env:"DATA_SOURCE"    description:"Remote base URL or directory of city GeoJSON files"`
	Output      string   `short:"o" long:"out"          env:"DATA_DIR"       description:"Directory to store city GeoJSON files" default:"municipalities"`
	Limit       []string `short:"l" long:"limit"        env:"LIMIT_NAMES"    description:"Limit processing to specific cities"`
	Concurrency int      `short:"p" long:"concurrency"  env:"CONCURRENCY"    description:"Concurrency" default:"8"`
	Margin      int      `short:"m" long:"margin"       env:"TILE_MARGIN"    description:"Extra pixels of tiles around each city view" default:"256"`
	CacheDir    string   `long:"tile-cache"             env:"TILE_CACHE_DIR" description:"Tile cache directory" default:"tiles"`
	TilesOnly   bool     `short:"t" long:"tiles-only"   description:"Download tiles only"`
	GeoJSONOnly bool     `short:"g" long:"geojson-only" description:"Download GeoJSON only"`
	Force       bool     `short:"f" long:"force"        description:"Force overwrite of existing files"`
}

func main() {
	envFile, envErr := config.LoadDotEnv(os.Args[1:])

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()
	if envErr != nil {
		log.Warn().Err(envErr).Str("path", envFile).Msg("Failed to load env file")
	}

	cfg, err := config.Load(opts.ConfigFile)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", opts.ConfigFile).Msg("Configuration file not found, using built-in defaults")
		cfg = config.Default()
	} else if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	processTiles := true
	processGeo := true
	if opts.TilesOnly && !opts.GeoJSONOnly {
		processGeo = false
	} else if opts.GeoJSONOnly && !opts.TilesOnly {
		processTiles = false
	}

	if processGeo && opts.Source == "" {
		log.Fatal().Msg("--source is required to download GeoJSON")
	}

	client := &http.Client{
		Transport: &http.Transport{
			TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
		Timeout: 15 * time.Second,
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}

	// Filter cities if limit is set
	cities := cfg.Cities
	if len(opts.Limit) > 0 {
		cities = make([]config.City, 0, len(opts.Limit))
		seen := make(map[string]bool)

		for _, name := range opts.Limit {
			city, ok := cfg.City(name)
			if !ok {
				log.Error().
					Str("name", name).
					Msg("City specified in --limit not found in configuration")
				continue
			}
			if seen[city.Name] {
				continue
			}
			seen[city.Name] = true
			cities = append(cities, city)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Int("cities_total", len(cfg.Cities)).
		Int("cities_queued", len(cities)).
		Msg("Starting loader")

	remote := loader.New(cfg, &http.Client{})
	remote.Base = opts.Source
	remote.Resources = nil

	cfg.Tiles.CacheDir = opts.CacheDir
	tiles := processor.NewTileCache(cfg.Tiles, client)

	failed := 0
	for _, city := range cities {
		if ctx.Err() != nil {
			break
		}

		if processGeo {
			if err := downloadCity(ctx, remote, opts.Output, city.Name, opts.Force); err != nil {
				log.Error().Err(err).Str("city", city.Name).Msg("Failed to download city data")
				failed++
			}
		}

		if !processTiles {
			continue
		}
		if tiles.URLTemplate == "" {
			log.Warn().Msg("No tile URL configured, skipping tiles")
			processTiles = false
			continue
		}

		set := processor.CityTiles(city, cfg.Render.Width, cfg.Render.Height, opts.Margin)
		if !tiles.Probe(ctx, set) {
			log.Error().Str("city", city.Name).Msg("Tile source has no data for the city view")
			failed++
			continue
		}

		valid := processor.Prefetch(ctx, tiles, set, opts.Concurrency, opts.Force)
		log.Info().
			Str("city", city.Name).
			Int("tiles", len(set)).
			Int("cached", len(valid)).
			Msg("Tiles prefetched")
	}

	if failed > 0 {
		log.Fatal().Int("failed", failed).Msg("Loader finished with errors")
	}
	log.Info().Msg("Loader finished successfully")
}

func downloadCity(ctx context.Context, remote *loader.Loader, dir, city string, force bool) error {
	kinds := []struct {
		kind   loader.Kind
		suffix string
	}{
		{loader.Current, remote.CurrentSuffix},
		{loader.Baseline, remote.BaselineSuffix},
	}

	for _, k := range kinds {
		if k.kind == loader.Baseline && k.suffix == "" {
			continue
		}

		dest := filepath.Join(dir, city+k.suffix+".geojson")
		if _, err := os.Stat(dest); err == nil && !force {
			log.Debug().Str("city", city).Str("path", dest).Msg("GeoJSON exists, skipping")
			continue
		}

		fc, err := remote.Load(ctx, city, k.kind)
		if err != nil {
			return err
		}

		path, err := loader.Save(dir, city, k.suffix, fc)
		if err != nil {
			return err
		}

		log.Info().
			Str("city", city).
			Str("kind", k.kind.String()).
			Int("features", len(fc.Features)).
			Str("path", path).
			Msg("GeoJSON saved")
	}

	return nil
}
