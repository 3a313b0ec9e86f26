package server

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/goleak"

	"github.com/woozymasta/energymap/internal/atlas"
	"github.com/woozymasta/energymap/internal/config"
	"github.com/woozymasta/energymap/internal/loader"
	"github.com/woozymasta/energymap/internal/stats"
	"github.com/woozymasta/energymap/internal/surface"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubSource struct{}

func (stubSource) Load(_ context.Context, city string, kind loader.Kind) (*geojson.FeatureCollection, error) {
	if kind == loader.Baseline {
		return nil, &loader.LoadError{City: city, Err: loader.ErrNoSource}
	}
	if city == "gava" {
		return nil, &loader.LoadError{City: city, Source: "stub", Attempts: 3, Err: errors.New("timeout")}
	}

	x, y := 457882.1995, 4669887.5997
	f := geojson.NewFeature(orb.Polygon{{
		{x - 30, y - 30}, {x + 30, y - 30}, {x + 30, y + 30}, {x - 30, y + 30}, {x - 30, y - 30},
	}})
	f.Properties["energy_label"] = "A"
	f.Properties["value"] = 50.0

	fc := geojson.NewFeatureCollection()
	fc.Append(f)
	return fc, nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	cfg := config.Default()
	cfg.Render.Width, cfg.Render.Height = 32, 32
	cfg.Render.AttachRelayout = time.Millisecond
	cfg.Render.UpdateRelayout = time.Millisecond
	var cities []config.City
	for _, c := range cfg.Cities {
		if c.Name == "olot" {
			c.Aliases = []string{"garrotxa"}
			cities = append(cities, c)
		}
		if c.Name == "gava" {
			cities = append(cities, c)
		}
	}
	cfg.Cities = cities

	a := atlas.New(cfg, stubSource{}, nil)
	t.Cleanup(a.Close)

	for _, c := range cfg.Cities {
		ctrl, _ := a.Controller(c.Name)
		if err := ctrl.Attach(context.Background(), surface.NewFrame(cfg.Render.Width, cfg.Render.Height)); err != nil {
			t.Fatal(err)
		}
		_ = a.Load(context.Background(), c.Name)
	}

	return RequestLogger(NewServerContext(cfg, a).Routes(nil))
}

func do(t *testing.T, h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCitiesList(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/cities", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var resp struct {
		Tiles struct {
			URL string `json:"url"`
		} `json:"tiles"`
		Cities []struct {
			Name   string          `json:"name"`
			Center []float64       `json:"center"`
			Zoom   int             `json:"zoom"`
			State  atlas.CityState `json:"state"`
		} `json:"cities"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	if len(resp.Cities) != 2 || resp.Cities[0].Name != "gava" || resp.Cities[1].Name != "olot" {
		t.Fatalf("unexpected cities %+v", resp.Cities)
	}
	if resp.Cities[0].State.Status != atlas.StatusError {
		t.Errorf("gava should report an error, got %+v", resp.Cities[0].State)
	}
	olot := resp.Cities[1]
	if olot.State.Status != atlas.StatusSuccess || olot.Zoom != 15 || olot.Center[0] != 42.18 {
		t.Errorf("unexpected olot entry %+v", olot)
	}
	if !strings.Contains(resp.Tiles.URL, "dark_all") {
		t.Errorf("unexpected tile url %q", resp.Tiles.URL)
	}
}

func TestGeoJSON(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/cities/olot/geojson", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/geo+json" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(fc.Features))
	}
	f := fc.Features[0]
	if f.Properties["tooltip"] != "A / 50 m²" {
		t.Errorf("unexpected tooltip %v", f.Properties["tooltip"])
	}
	if c := f.Geometry.Bound().Center(); c.Lon() < 2.48 || c.Lon() > 2.50 || c.Lat() < 42.17 || c.Lat() > 42.19 {
		t.Errorf("geometry not in WGS84: %v", c)
	}
	styleProps, _ := f.Properties["style"].(map[string]any)
	if styleProps["fillColor"] != "#00ff00" {
		t.Errorf("unexpected style %v", f.Properties["style"])
	}

	etag := rec.Header().Get("ETag")
	rec = do(t, h, http.MethodGet, "/api/cities/garrotxa/geojson", http.Header{"If-None-Match": {etag}})
	if rec.Code != http.StatusNotModified {
		t.Errorf("expected 304 via alias, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/cities/gava/geojson", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Load-Status") != "error" {
		t.Errorf("unexpected failed city response %d %s", rec.Code, rec.Header().Get("X-Load-Status"))
	}
	if !strings.Contains(rec.Body.String(), `"features":[]`) {
		t.Errorf("failed city should serve an empty collection, got %s", rec.Body.String())
	}
}

func TestStatsAndLegend(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/cities/olot/stats", nil)
	var s stats.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if s.TotalBuildings != 1 || s.Buildings["A"] != 1 || s.Area["A"] != 50 {
		t.Errorf("unexpected stats %+v", s)
	}

	rec = do(t, h, http.MethodGet, "/api/cities/olot/legend", nil)
	var legend stats.LegendView
	if err := json.Unmarshal(rec.Body.Bytes(), &legend); err != nil {
		t.Fatal(err)
	}
	if len(legend.Rows) != 7 || legend.Rows[0].Percentage != 100 {
		t.Errorf("unexpected legend %+v", legend)
	}

	if rec := do(t, h, http.MethodGet, "/api/cities/girona/stats", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown city, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/cities/olot/unknown", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown action, got %d", rec.Code)
	}
}

func TestTooltip(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/cities/olot/tooltip?lat=42.18&lon=2.49", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "A / 50 m²") {
		t.Errorf("unexpected tooltip response %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/api/cities/olot/tooltip?lat=x", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/cities/olot/tooltip?lat=41&lon=2", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestReload(t *testing.T) {
	h := newTestServer(t)

	if rec := do(t, h, http.MethodGet, "/api/cities/olot/reload", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/cities/olot/reload", nil); rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/cities/olot/stats", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestMapImage(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/maps/olot/view.png?w=64&h=48", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Errorf("unexpected image size %v", img.Bounds())
	}

	// a sized request must not change the size seen by later clients
	rec = do(t, h, http.MethodGet, "/maps/olot/view.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	img, err = png.Decode(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 32 {
		t.Errorf("default view should keep the configured size, got %v", img.Bounds())
	}

	rec = do(t, h, http.MethodGet, "/maps/garrotxa/view.webp", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/webp" {
		t.Errorf("unexpected webp response %d", rec.Code)
	}

	for _, target := range []string{"/maps/olot/view.gif", "/maps/olot/other.png", "/maps/girona/view.png", "/maps/olot"} {
		if rec := do(t, h, http.MethodGet, target, nil); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", target, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodGet, "/maps/olot/view.png?w=5000&h=10", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized image, got %d", rec.Code)
	}
}

func TestIndexAndFavicon(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("unexpected index response %d", rec.Code)
	}
	etag := rec.Header().Get("ETag")
	if rec := do(t, h, http.MethodGet, "/", http.Header{"If-None-Match": {etag}}); rec.Code != http.StatusNotModified {
		t.Errorf("expected 304, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/missing.js", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/favicon.ico", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/svg+xml" {
		t.Errorf("unexpected favicon response %d", rec.Code)
	}
}
