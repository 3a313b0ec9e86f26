package label

import (
	"encoding/json"
	"math"
	"testing"
)

func TestFromProperties(t *testing.T) {
	cases := []struct {
		props map[string]any
		want  Label
		ok    bool
	}{
		{map[string]any{"energy_label": "C"}, C, true},
		{map[string]any{"energy_label": "Z"}, "Z", true},
		{map[string]any{"energy_label": ""}, "", false},
		{map[string]any{"energy_label": 4.0}, "", false},
		{map[string]any{"energy_label": nil}, "", false},
		{map[string]any{}, "", false},
		{nil, "", false},
	}

	for _, tc := range cases {
		got, ok := FromProperties(tc.props)
		if got != tc.want || ok != tc.ok {
			t.Errorf("props %v: expected (%q, %v), got (%q, %v)", tc.props, tc.want, tc.ok, got, ok)
		}
	}
}

func TestAreaFromProperties(t *testing.T) {
	cases := []struct {
		value any
		want  float64
	}{
		{120.5, 120.5},
		{int64(30), 30},
		{json.Number("70.25"), 70.25},
		{"55", 55},
		{" 12.5 m2", 12.5},
		{"1e3", 1000},
		{"abc", 0},
		{-4.0, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{true, 0},
		{nil, 0},
	}

	for _, tc := range cases {
		got := AreaFromProperties(map[string]any{"value": tc.value})
		if got != tc.want {
			t.Errorf("value %v: expected %v, got %v", tc.value, tc.want, got)
		}
	}

	if AreaFromProperties(nil) != 0 {
		t.Error("nil properties should yield 0")
	}
}

func TestKnown(t *testing.T) {
	for _, l := range All {
		if !l.Known() {
			t.Errorf("expected %s to be known", l)
		}
	}
	if Label("Z").Known() || Label("a").Known() {
		t.Error("unexpected known label")
	}
}
