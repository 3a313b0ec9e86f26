package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/woozymasta/energymap/internal/atlas"
	"github.com/woozymasta/energymap/internal/config"
	"github.com/woozymasta/energymap/internal/loader"
	"github.com/woozymasta/energymap/internal/logger"
	"github.com/woozymasta/energymap/internal/metrics"
	"github.com/woozymasta/energymap/internal/processor"
	"github.com/woozymasta/energymap/internal/server"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	EnvFile    string `short:"e" long:"env-file"   env:"ENV_FILE"       description:"Optional .env file"          default:".env"`
	ConfigFile string `short:"c" long:"config"     env:"CONFIG_FILE"    description:"Path to configuration file" default:"config.yaml"`
	Addr       string `short:"a" long:"addr"       env:"LISTEN_ADDRESS" description:"Address to listen on"       default:"0.0.0.0"`
	Port       int    `short:"p" long:"port"       env:"LISTEN_PORT"    description:"Port to listen on"          default:"8080"`
	DataBase   string `short:"d" long:"data"       env:"DATA_BASE"      description:"Override data directory or base URL"`
	CacheDir   string `long:"tile-cache"           env:"TILE_CACHE_DIR" description:"Override tile cache directory"`
	Offline    bool   `long:"offline"              env:"OFFLINE"        description:"Serve cached tiles only"`
}

func main() {
	// .env must be loaded before flags so env-tagged options see it
	envFile, envErr := config.LoadDotEnv(os.Args[1:])

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Setup Logging
	opts.Logger.Setup()
	if envErr != nil {
		log.Warn().Err(envErr).Str("path", envFile).Msg("Failed to load env file")
	}

	// Load Config
	cfg, err := config.Load(opts.ConfigFile)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", opts.ConfigFile).Msg("Configuration file not found, using built-in defaults")
		cfg = config.Default()
	} else if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if opts.DataBase != "" {
		cfg.Data.Base = opts.DataBase
	}
	if opts.CacheDir != "" {
		cfg.Tiles.CacheDir = opts.CacheDir
	}

	client := &http.Client{Timeout: 30 * time.Second}

	tiles := processor.NewTileCache(cfg.Tiles, client)
	if opts.Offline {
		tiles.URLTemplate = ""
	}

	// per-attempt timeouts are set by the loader
	src := loader.New(cfg, &http.Client{})
	a := atlas.New(cfg, src, tiles)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start atlas")
	}

	srvCtx := server.NewServerContext(cfg, a)
	handler := server.RequestLogger(srvCtx.Routes(metrics.Handler()))

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", listenAddr).
			Int("cities", len(cfg.Cities)).
			Str("data", cfg.Data.Base).
			Msg("Web server started")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	cancel()
	a.Close()

	log.Info().Msg("Shutdown complete")
}
