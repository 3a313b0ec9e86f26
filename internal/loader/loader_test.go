package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/goleak"

	"github.com/woozymasta/energymap/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const olotDoc = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Point","coordinates":[457882.1995,4669887.5997]},"properties":{"energy_label":"A","value":50}}
]}`

func newLoader(base string, client *http.Client) *Loader {
	return &Loader{
		Base:          base,
		CurrentSuffix: "_e",
		Timeout:       time.Second,
		Attempts:      3,
		Backoff:       time.Millisecond,
		Client:        client,
	}
}

func TestSource(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Base = "https://data.example.org/municipalities/"
	cfg.Cities[0].Baseline = "/srv/begur_2020.geojson"

	l := New(cfg, nil)

	src, ok := l.Source("olot", Current)
	if !ok || src != "https://data.example.org/municipalities/olot_e.geojson" {
		t.Errorf("unexpected current source %q", src)
	}
	if _, ok := l.Source("olot", Baseline); ok {
		t.Error("baseline should be absent without a suffix or override")
	}
	src, ok = l.Source("begur", Baseline)
	if !ok || src != "/srv/begur_2020.geojson" {
		t.Errorf("unexpected baseline override %q", src)
	}

	l.Base = "data"
	src, _ = l.Source("gava", Current)
	if src != filepath.Join("data", "gava_e.geojson") {
		t.Errorf("unexpected file source %q", src)
	}
}

func TestLoadHTTPRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/olot_e.geojson" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Accept") != Accept {
			t.Errorf("unexpected Accept header %q", r.Header.Get("Accept"))
		}
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(olotDoc))
	}))
	defer srv.Close()

	fc, err := newLoader(srv.URL, srv.Client()).Load(context.Background(), "olot", Current)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(fc.Features) != 1 || calls.Load() != 3 {
		t.Errorf("expected 1 feature after 3 calls, got %d after %d", len(fc.Features), calls.Load())
	}
}

func TestLoadNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newLoader(srv.URL, srv.Client()).Load(context.Background(), "gava", Current)

	var lerr *LoadError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if !errors.Is(err, ErrNotFound) || lerr.Attempts != 1 || calls.Load() != 1 {
		t.Errorf("not found should fail fast, got %v after %d calls", err, calls.Load())
	}
	if lerr.City != "gava" {
		t.Errorf("unexpected city %q", lerr.City)
	}
}

func TestLoadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	l := newLoader(srv.URL, srv.Client())
	l.Timeout = 20 * time.Millisecond
	l.Attempts = 2

	_, err := l.Load(context.Background(), "mataro", Current)

	var lerr *LoadError
	if !errors.As(err, &lerr) || lerr.Attempts != 2 {
		t.Fatalf("expected LoadError after 2 attempts, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded cause, got %v", err)
	}
}

func TestLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := newLoader(t.TempDir(), nil)
	l.Backoff = time.Hour
	if err := os.WriteFile(filepath.Join(l.Base, "olot_e.geojson"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err := l.Load(ctx, "olot", Current)
	if err == nil || time.Since(start) > time.Second {
		t.Fatalf("cancelled load should stop immediately, got %v", err)
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "olot_e.geojson"), []byte(olotDoc), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "begur_e.geojson"), []byte(`{"type":"FeatureCollection"}`), 0644); err != nil {
		t.Fatal(err)
	}

	l := newLoader(dir, nil)

	fc, err := l.Load(context.Background(), "olot", Current)
	if err != nil || len(fc.Features) != 1 {
		t.Fatalf("unexpected result %v %v", fc, err)
	}

	_, err = l.Load(context.Background(), "begur", Current)
	var lerr *LoadError
	if !errors.As(err, &lerr) || lerr.Attempts != 3 {
		t.Errorf("malformed document should be retried then fail, got %v", err)
	}

	_, err = l.Load(context.Background(), "gava", Current)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = l.Load(context.Background(), "gava", Baseline)
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{1, 2})
	f.Properties["energy_label"] = "B"
	fc.Append(f)

	path, err := Save(dir, "olot", "_e", fc)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if path != filepath.Join(dir, "olot_e.geojson") {
		t.Errorf("unexpected path %q", path)
	}

	got, err := newLoader(dir, nil).Load(context.Background(), "olot", Current)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Features[0].Properties["energy_label"] != "B" {
		t.Errorf("unexpected properties %v", got.Features[0].Properties)
	}
}
