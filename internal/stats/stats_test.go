package stats

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/energymap/internal/label"
)

func collection(props ...geojson.Properties) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range props {
		f := geojson.NewFeature(orb.Point{0, 0})
		f.Properties = p
		fc.Append(f)
	}
	return fc
}

func labels(ls ...string) *geojson.FeatureCollection {
	props := make([]geojson.Properties, len(ls))
	for i, l := range ls {
		props[i] = geojson.Properties{"energy_label": l}
	}
	return collection(props...)
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(geojson.NewFeatureCollection(), geojson.NewFeatureCollection())

	want := Snapshot{
		Buildings:   map[label.Label]int{},
		Area:        map[label.Label]float64{},
		Differences: map[label.Label]int{},
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("unexpected snapshot (-want +got):\n%s", diff)
	}
}

func TestAggregateNilCollections(t *testing.T) {
	s := Aggregate(nil, nil)
	if s.TotalBuildings != 0 || s.TotalArea != 0 {
		t.Errorf("expected zero totals, got %+v", s)
	}
	if s.Buildings == nil || s.Area == nil || s.Differences == nil {
		t.Error("maps must never be nil")
	}
}

func TestAggregateDifferences(t *testing.T) {
	current := labels("A", "A", "A", "B", "B")
	baseline := labels("A", "B", "B", "C")

	s := Aggregate(current, baseline)

	want := map[label.Label]int{"A": 2, "B": 0, "C": -1}
	if diff := cmp.Diff(want, s.Differences); diff != "" {
		t.Errorf("unexpected differences (-want +got):\n%s", diff)
	}
}

func TestAggregateSingleFeature(t *testing.T) {
	s := Aggregate(collection(geojson.Properties{"energy_label": "C", "value": 120.5}), nil)

	if s.Buildings["C"] != 1 || s.Area["C"] != 120.5 {
		t.Errorf("unexpected buckets %v %v", s.Buildings, s.Area)
	}
	if s.TotalBuildings != 1 || s.TotalArea != 120.5 {
		t.Errorf("unexpected totals %d %f", s.TotalBuildings, s.TotalArea)
	}
	if len(s.Differences) != 0 {
		t.Errorf("expected no differences without baseline, got %v", s.Differences)
	}
}

func TestAggregateMissingLabelAndArea(t *testing.T) {
	s := Aggregate(collection(
		geojson.Properties{"value": 300.0},
		geojson.Properties{"energy_label": "D"},
		geojson.Properties{"energy_label": "D", "value": "oops"},
		nil,
	), nil)

	if s.TotalBuildings != 2 {
		t.Errorf("expected 2 labelled buildings, got %d", s.TotalBuildings)
	}
	if s.TotalArea != 0 || s.Area["D"] != 0 {
		t.Errorf("expected zero area, got %f", s.TotalArea)
	}
}

func TestAggregatePermutationInvariant(t *testing.T) {
	props := []geojson.Properties{
		{"energy_label": "A", "value": 50.0},
		{"energy_label": "A", "value": 70.0},
		{"energy_label": "G", "value": 30.0},
		{"energy_label": "C", "value": 12.0},
		{"value": 99.0},
		{"energy_label": "F", "value": "8"},
	}
	want := Aggregate(collection(props...), labels("A", "E"))

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]geojson.Properties(nil), props...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := Aggregate(collection(shuffled...), labels("E", "A"))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("order changed the result (-want +got):\n%s", diff)
		}
	}
}

func TestLegend(t *testing.T) {
	s := Aggregate(collection(
		geojson.Properties{"energy_label": "A", "value": 50.0},
		geojson.Properties{"energy_label": "A", "value": 70.0},
		geojson.Properties{"energy_label": "G", "value": 30.0},
	), labels("A"))

	view := Legend(s)
	if len(view.Rows) != 7 {
		t.Fatalf("expected 7 rows, got %d", len(view.Rows))
	}

	a, g, c := view.Rows[0], view.Rows[6], view.Rows[2]
	if a.Count != 2 || a.Percentage != 66.7 || a.BarWidth != 100 || a.Color != "#00ff00" {
		t.Errorf("unexpected A row %+v", a)
	}
	if g.Count != 1 || g.Percentage != 33.3 || g.BarWidth != 50 || g.Area != 30 {
		t.Errorf("unexpected G row %+v", g)
	}
	if c.Count != 0 || c.Percentage != 0 || c.Difference != nil {
		t.Errorf("unexpected C row %+v", c)
	}
	if a.Difference == nil || *a.Difference != 1 {
		t.Errorf("unexpected A difference %v", a.Difference)
	}
	if view.TotalBuildings != 3 || view.TotalArea != 150 {
		t.Errorf("unexpected totals %d %f", view.TotalBuildings, view.TotalArea)
	}
}
