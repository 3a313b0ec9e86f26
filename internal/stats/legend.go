package stats

import (
	"math"

	"github.com/woozymasta/energymap/internal/label"
	"github.com/woozymasta/energymap/internal/style"
)

// LegendRow is one bar of the legend chart.
type LegendRow struct {
	Label      label.Label `json:"label"`
	Color      string      `json:"color"`
	Count      int         `json:"count"`
	Area       float64     `json:"area"`
	Percentage float64     `json:"percentage"`
	BarWidth   float64     `json:"barWidth"`
	Difference *int        `json:"difference,omitempty"`
}

// LegendView is the legend panel content for one city.
type LegendView struct {
	Rows           []LegendRow `json:"rows"`
	TotalBuildings int         `json:"totalBuildings"`
	TotalArea      float64     `json:"totalArea"`
}

// Legend lays out a snapshot as rows A..G. Percentages are of the total
// labelled buildings rounded to one decimal; bar widths are relative to the
// largest bucket. Labels outside A..G are counted in the totals only.
func Legend(s Snapshot) LegendView {
	maxCount := 0
	for _, l := range label.All {
		if n := s.Buildings[l]; n > maxCount {
			maxCount = n
		}
	}

	view := LegendView{
		Rows:           make([]LegendRow, 0, len(label.All)),
		TotalBuildings: s.TotalBuildings,
		TotalArea:      s.TotalArea,
	}

	for _, l := range label.All {
		count := s.Buildings[l]
		row := LegendRow{
			Label: l,
			Color: style.Color(l, true),
			Count: count,
			Area:  s.Area[l],
		}
		if s.TotalBuildings > 0 {
			row.Percentage = math.Round(float64(count)/float64(s.TotalBuildings)*1000) / 10
		}
		if maxCount > 0 {
			row.BarWidth = float64(count) / float64(maxCount) * 100
		}
		if d, ok := s.Differences[l]; ok {
			row.Difference = &d
		}
		view.Rows = append(view.Rows, row)
	}

	return view
}
