// Package label reads energy label attributes from GeoJSON feature properties.
package label

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Property keys carried by municipal building features.
const (
	KeyLabel = "energy_label"
	KeyValue = "value"
)

// Label is an energy performance category. A is best, G is worst.
type Label string

// Known labels in display order.
const (
	A Label = "A"
	B Label = "B"
	C Label = "C"
	D Label = "D"
	E Label = "E"
	F Label = "F"
	G Label = "G"
)

// All lists the known labels from best to worst.
var All = []Label{A, B, C, D, E, F, G}

// Known reports whether l is one of A..G.
func (l Label) Known() bool {
	switch l {
	case A, B, C, D, E, F, G:
		return true
	}
	return false
}

// FromProperties returns the feature's energy label. A missing, empty or
// non-string value is reported as absent. Unknown symbols are returned as is so
// they can still be counted.
func FromProperties(props map[string]any) (Label, bool) {
	if props == nil {
		return "", false
	}
	s, ok := props[KeyLabel].(string)
	if !ok || s == "" {
		return "", false
	}
	return Label(s), true
}

// AreaFromProperties returns the feature's floor area in square meters.
// Strings are parsed by their leading numeric prefix. Missing, unparseable,
// negative or non-finite values yield 0.
func AreaFromProperties(props map[string]any) float64 {
	if props == nil {
		return 0
	}

	var v float64
	switch x := props[KeyValue].(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0
		}
		v = f
	case string:
		v = parseFloatPrefix(x)
	default:
		return 0
	}

	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// parseFloatPrefix parses the longest numeric prefix of s, so "120.5 m2" is 120.5.
func parseFloatPrefix(s string) float64 {
	s = strings.TrimSpace(s)

	end := 0
	seenDigit, seenDot, seenExp := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
			end = i + 1
		case (c == '+' || c == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			i = len(s)
		}
	}

	if !seenDigit {
		return 0
	}

	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return f
}
