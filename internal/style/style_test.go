package style

import (
	"image/color"
	"testing"

	"github.com/woozymasta/energymap/internal/label"
)

func TestForRamp(t *testing.T) {
	cases := map[label.Label]string{
		label.A: "#00ff00",
		label.D: "#ff8000",
		label.G: "#800000",
	}
	for l, want := range cases {
		if got := For(l, true).FillColor; got != want {
			t.Errorf("label %s: expected %s, got %s", l, want, got)
		}
	}
}

func TestForUnknownAndMissing(t *testing.T) {
	if got := For("Z", true).FillColor; got != Fallback {
		t.Errorf("unknown label: expected fallback, got %s", got)
	}
	if got := For("", false).FillColor; got != Fallback {
		t.Errorf("missing label: expected fallback, got %s", got)
	}
	if got := ForProperties(nil).FillColor; got != Fallback {
		t.Errorf("nil properties: expected fallback, got %s", got)
	}
}

func TestStyleConstants(t *testing.T) {
	s := For(label.C, true)
	if s.FillOpacity != 0.7 || s.StrokeColor != "#ffffff" || s.StrokeWeight != 1 || s.StrokeOpacity != 0.5 {
		t.Errorf("unexpected style %+v", s)
	}
}

func TestTooltip(t *testing.T) {
	cases := []struct {
		props map[string]any
		want  string
	}{
		{map[string]any{"energy_label": "C", "value": 120.5}, "C / 120.5 m²"},
		{map[string]any{"energy_label": "A"}, "A / 0 m²"},
		{map[string]any{"value": 50.0}, "N/A / 50 m²"},
		{map[string]any{"energy_label": "B", "value": "75"}, "B / 75 m²"},
		{nil, "N/A / 0 m²"},
	}

	for _, tc := range cases {
		if got := TooltipForProperties(tc.props); got != tc.want {
			t.Errorf("props %v: expected %q, got %q", tc.props, tc.want, got)
		}
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#80ff00")
	if err != nil {
		t.Fatal(err)
	}
	if c != (color.NRGBA{R: 0x80, G: 0xff, B: 0x00, A: 0xff}) {
		t.Errorf("unexpected color %v", c)
	}

	short, err := ParseHex("#fff")
	if err != nil || short != (color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}) {
		t.Errorf("unexpected short color %v (%v)", short, err)
	}

	if _, err := ParseHex("#12"); err == nil {
		t.Error("expected error for malformed color")
	}
}

func TestFillOpacity(t *testing.T) {
	f := For(label.A, true).Fill()
	if f.A != 179 || f.G != 0xff {
		t.Errorf("unexpected fill %v", f)
	}
	s := For(label.A, true).Stroke()
	if s.A != 128 {
		t.Errorf("unexpected stroke alpha %d", s.A)
	}
}
