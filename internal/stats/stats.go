// Package stats reduces feature collections into per-label building statistics.
package stats

import (
	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/energymap/internal/label"
)

// Snapshot holds per-label counts and areas of one collection and, when a
// baseline was given, signed count differences against it.
type Snapshot struct {
	Buildings      map[label.Label]int     `json:"buildings"`
	Area           map[label.Label]float64 `json:"area"`
	Differences    map[label.Label]int     `json:"differences"`
	TotalBuildings int                     `json:"totalBuildings"`
	TotalArea      float64                 `json:"totalArea"`
}

func newSnapshot() Snapshot {
	return Snapshot{
		Buildings:   make(map[label.Label]int),
		Area:        make(map[label.Label]float64),
		Differences: make(map[label.Label]int),
	}
}

// Aggregate counts labelled features in current and sums their area.
// Features without a label contribute nothing. If baseline is not nil, its
// labels are counted too and Differences holds current minus baseline for
// every label seen in either collection.
func Aggregate(current, baseline *geojson.FeatureCollection) Snapshot {
	s := newSnapshot()

	if current != nil {
		for _, f := range current.Features {
			if f == nil {
				continue
			}
			l, ok := label.FromProperties(f.Properties)
			if !ok {
				continue
			}
			area := label.AreaFromProperties(f.Properties)

			s.Buildings[l]++
			s.Area[l] += area
			s.TotalBuildings++
			s.TotalArea += area
		}
	}

	if baseline == nil {
		return s
	}

	base := Count(baseline)
	for l, n := range s.Buildings {
		s.Differences[l] = n - base[l]
	}
	for l, n := range base {
		if _, seen := s.Buildings[l]; !seen {
			s.Differences[l] = -n
		}
	}

	return s
}

// Count returns the number of features per label.
func Count(fc *geojson.FeatureCollection) map[label.Label]int {
	counts := make(map[label.Label]int)
	if fc == nil {
		return counts
	}
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		if l, ok := label.FromProperties(f.Properties); ok {
			counts[l]++
		}
	}
	return counts
}
