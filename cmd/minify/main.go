package main

import (
	"os"

	"github.com/woozymasta/energymap/assets"
	"github.com/woozymasta/energymap/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Output string `short:"o" long:"out" description:"Output HTML file" default:"assets/index.html"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	page, err := assets.Build()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build index page")
	}

	if err := os.WriteFile(opts.Output, page, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", opts.Output).Msg("Failed to write index page")
	}

	log.Info().Str("path", opts.Output).Int("bytes", len(page)).Msg("Minify done")
}
