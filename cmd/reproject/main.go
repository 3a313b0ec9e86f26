package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/woozymasta/energymap/internal/geo"
	"github.com/woozymasta/energymap/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Input  string `short:"i" long:"in"     description:"Input GeoJSON in projected coordinates. Reads from stdin if empty"`
	Output string `short:"o" long:"out"    description:"Output file path. Writes to stdout if empty"`
	Format string `short:"f" long:"format" description:"Output format" choice:"json" choice:"yaml" default:"json"`
	Zone   int    `short:"z" long:"zone"   description:"UTM zone of the input" default:"31"`
	South  bool   `long:"south"            description:"Input zone is on the southern hemisphere"`
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

	if opts.Zone < 1 || opts.Zone > 60 {
		log.Fatal().Int("zone", opts.Zone).Msg("--zone must be within 1..60")
	}

	var (
		input []byte
		err   error
	)
	if opts.Input != "" {
		input, err = os.ReadFile(opts.Input)
	} else {
		input, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read input")
	}

	var doc map[string]any
	if err := json.Unmarshal(input, &doc); err != nil {
		log.Fatal().Err(err).Msg("Input is not a GeoJSON object")
	}

	t := geo.Transformer(geo.UTM31N)
	if opts.Zone != 31 || opts.South {
		t = geo.NewUTM(opts.Zone, !opts.South, geo.GRS80)
	}

	out, failed := geo.WalkDocument(doc, t)
	if failed > 0 {
		log.Warn().Int("points", failed).Msg("Some coordinates could not be transformed and were kept as is")
	}

	var data []byte
	if opts.Format == "yaml" {
		data, err = yaml.Marshal(out)
	} else {
		data, err = json.MarshalIndent(out, "", "  ")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to marshal output")
	}

	if opts.Output == "" {
		fmt.Println(string(data))
		return
	}

	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		log.Fatal().Err(err).Msg("Failed to write output")
	}
	log.Info().
		Str("path", opts.Output).
		Str("format", opts.Format).
		Int("fallbacks", failed).
		Msg("Reprojected document written")
}
