// Package config handles configuration loading and shared data structures.
package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the root configuration file structure.
type Config struct {
	Attribution string `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	Tiles       Tiles  `yaml:"tiles" json:"tiles"`
	Data        Data   `yaml:"data" json:"-"`
	Loader      Loader `yaml:"loader" json:"-"`
	Render      Render `yaml:"render" json:"-"`
	Cities      []City `yaml:"cities" json:"cities"`
	Zoom        int    `yaml:"zoom,omitempty" json:"zoom"`
}

// Tiles configures the dark base map layer.
type Tiles struct {
	URL        string `yaml:"url" json:"url"`
	Subdomains string `yaml:"subdomains,omitempty" json:"subdomains,omitempty"`
	CacheDir   string `yaml:"cache_dir,omitempty" json:"-"`
	MaxZoom    int    `yaml:"max_zoom,omitempty" json:"maxZoom"`
	Quality    int    `yaml:"quality,omitempty" json:"-"`
	Offline    bool   `yaml:"offline,omitempty" json:"-"`
}

// Data locates the per-city GeoJSON resources.
type Data struct {
	// Base is a directory or an http(s) URL prefix.
	Base           string `yaml:"base"`
	Suffix         string `yaml:"suffix,omitempty"`
	BaselineSuffix string `yaml:"baseline_suffix,omitempty"`
}

// Loader bounds data loading.
type Loader struct {
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	Attempts int           `yaml:"attempts,omitempty"`
	Backoff  time.Duration `yaml:"backoff,omitempty"`
}

// Render sizes the server-side map surfaces.
type Render struct {
	Width          int           `yaml:"width,omitempty"`
	Height         int           `yaml:"height,omitempty"`
	AttachRelayout time.Duration `yaml:"attach_relayout,omitempty"`
	UpdateRelayout time.Duration `yaml:"update_relayout,omitempty"`
	Format         string        `yaml:"format,omitempty"`
}

// City represents a single municipality map.
type City struct {
	Index *int `yaml:"index,omitempty" json:"index,omitempty"`

	Name    string   `yaml:"name" json:"name"`
	Title   string   `yaml:"title,omitempty" json:"title"`
	Aliases []string `yaml:"aliases,omitempty" json:"-"`

	// Center is [lat, lon] in degrees.
	Center []float64 `yaml:"center,omitempty" json:"center"`
	Zoom   int       `yaml:"zoom,omitempty" json:"zoom"`

	// Data and Baseline override the resource paths derived from the data section.
	Data     string `yaml:"data,omitempty" json:"-"`
	Baseline string `yaml:"baseline,omitempty" json:"-"`
}

// Lat returns the configured center latitude.
func (c City) Lat() float64 { return c.Center[0] }

// Lon returns the configured center longitude.
func (c City) Lon() float64 { return c.Center[1] }

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in configuration for all four municipalities.
func Default() *Config {
	cfg := &Config{}
	// defaults are always valid
	_ = cfg.Normalize()
	return cfg
}

// Normalize fills defaults and validates city entries against the fixed set.
func (c *Config) Normalize() error {
	if c.Zoom <= 0 {
		c.Zoom = DefaultZoom
	}
	if c.Attribution == "" {
		c.Attribution = "© OpenStreetMap contributors © CARTO"
	}

	if c.Tiles.URL == "" && !c.Tiles.Offline {
		c.Tiles.URL = "https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png"
		if c.Tiles.Subdomains == "" {
			c.Tiles.Subdomains = "abcd"
		}
	}
	if c.Tiles.MaxZoom <= 0 {
		c.Tiles.MaxZoom = 19
	}
	if c.Tiles.Quality <= 0 || c.Tiles.Quality > 100 {
		c.Tiles.Quality = 80
	}

	if c.Data.Base == "" {
		c.Data.Base = "municipalities"
	}
	if c.Data.Suffix == "" {
		c.Data.Suffix = "_e"
	}

	if c.Loader.Timeout <= 0 {
		c.Loader.Timeout = 2 * time.Minute
	}
	if c.Loader.Attempts <= 0 {
		c.Loader.Attempts = 3
	}
	if c.Loader.Backoff <= 0 {
		c.Loader.Backoff = time.Second
	}

	if c.Render.Width <= 0 {
		c.Render.Width = 512
	}
	if c.Render.Height <= 0 {
		c.Render.Height = 512
	}
	if c.Render.AttachRelayout <= 0 {
		c.Render.AttachRelayout = 100 * time.Millisecond
	}
	if c.Render.UpdateRelayout <= 0 {
		c.Render.UpdateRelayout = 100 * time.Millisecond
	}
	if c.Render.Format == "" {
		c.Render.Format = "webp"
	}

	if len(c.Cities) == 0 {
		for _, name := range Names {
			c.Cities = append(c.Cities, City{Name: name})
		}
	}

	seen := make(map[string]bool, len(c.Cities))
	for i := range c.Cities {
		city := &c.Cities[i]

		def, ok := Defaults[city.Name]
		if !ok {
			return fmt.Errorf("unknown city %q", city.Name)
		}
		if seen[city.Name] {
			return fmt.Errorf("duplicate city %q", city.Name)
		}
		seen[city.Name] = true

		if city.Title == "" {
			city.Title = def.Title
		}
		if len(city.Center) == 0 {
			city.Center = []float64{def.Lat, def.Lon}
		}
		if len(city.Center) != 2 {
			return fmt.Errorf("city %q: center must be [lat, lon]", city.Name)
		}
		if city.Zoom <= 0 {
			city.Zoom = c.Zoom
		}
	}

	sort.SliceStable(c.Cities, func(i, j int) bool {
		idxI, idxJ := math.MaxInt, math.MaxInt
		if c.Cities[i].Index != nil {
			idxI = *c.Cities[i].Index
		}
		if c.Cities[j].Index != nil {
			idxJ = *c.Cities[j].Index
		}
		if idxI != idxJ {
			return idxI < idxJ
		}

		return order(c.Cities[i].Name) < order(c.Cities[j].Name)
	})

	return nil
}

func order(name string) int {
	for i, n := range Names {
		if n == name {
			return i
		}
	}
	return len(Names)
}

// City resolves a city by name or alias.
func (c *Config) City(name string) (City, bool) {
	for _, city := range c.Cities {
		if city.Name == name {
			return city, true
		}
		for _, alias := range city.Aliases {
			if alias == name {
				return city, true
			}
		}
	}
	return City{}, false
}
