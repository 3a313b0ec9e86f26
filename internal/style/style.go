// Package style maps energy labels to map styles and tooltip text.
package style

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/woozymasta/energymap/internal/label"
)

// Fallback is the fill for features with a missing or unknown label.
const Fallback = "#666666"

// Ramp is the fixed label color table, bright green to dark red.
var Ramp = map[label.Label]string{
	label.A: "#00ff00",
	label.B: "#80ff00",
	label.C: "#ffff00",
	label.D: "#ff8000",
	label.E: "#ff4000",
	label.F: "#ff0000",
	label.G: "#800000",
}

// Style describes how a feature is painted. JSON names follow Leaflet path options.
type Style struct {
	FillColor     string  `json:"fillColor"`
	FillOpacity   float64 `json:"fillOpacity"`
	StrokeColor   string  `json:"color"`
	StrokeWeight  float64 `json:"weight"`
	StrokeOpacity float64 `json:"opacity"`
}

// Color returns the ramp color for l, or Fallback.
func Color(l label.Label, ok bool) string {
	if !ok {
		return Fallback
	}
	if c, found := Ramp[l]; found {
		return c
	}
	return Fallback
}

// For returns the style of a feature with label l. ok is false when the
// feature carries no label.
func For(l label.Label, ok bool) Style {
	return Style{
		FillColor:     Color(l, ok),
		FillOpacity:   0.7,
		StrokeColor:   "#ffffff",
		StrokeWeight:  1,
		StrokeOpacity: 0.5,
	}
}

// ForProperties styles a feature from its raw properties.
func ForProperties(props map[string]any) Style {
	return For(label.FromProperties(props))
}

// Tooltip formats the hover text "<label> / <area> m²".
func Tooltip(l label.Label, ok bool, area float64) string {
	text := "N/A"
	if ok {
		text = string(l)
	}
	return fmt.Sprintf("%s / %s m²", text, strconv.FormatFloat(area, 'f', -1, 64))
}

// TooltipForProperties formats the hover text from raw properties.
func TooltipForProperties(props map[string]any) string {
	l, ok := label.FromProperties(props)
	return Tooltip(l, ok, label.AreaFromProperties(props))
}

// Fill returns the fill color with its opacity applied.
func (s Style) Fill() color.NRGBA {
	return withOpacity(s.FillColor, s.FillOpacity)
}

// Stroke returns the stroke color with its opacity applied.
func (s Style) Stroke() color.NRGBA {
	return withOpacity(s.StrokeColor, s.StrokeOpacity)
}

// ParseHex parses "#rgb" or "#rrggbb".
func ParseHex(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}

	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}

	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func withOpacity(hex string, opacity float64) color.NRGBA {
	c, err := ParseHex(hex)
	if err != nil {
		c, _ = ParseHex(Fallback)
	}

	switch {
	case opacity <= 0:
		c.A = 0
	case opacity < 1:
		c.A = uint8(opacity*255 + 0.5)
	}
	return c
}
