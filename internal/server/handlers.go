// Package server handles HTTP requests and middleware.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/energymap/internal/atlas"
	"github.com/woozymasta/energymap/internal/config"
	"github.com/woozymasta/energymap/internal/surface"
)

const etagCap = 64

type tilesView struct {
	URL         string `json:"url"`
	Subdomains  string `json:"subdomains,omitempty"`
	MaxZoom     int    `json:"maxZoom"`
	Attribution string `json:"attribution,omitempty"`
}

type cityView struct {
	config.City
	State atlas.CityState `json:"state"`
}

type citiesResponse struct {
	Tiles  tilesView  `json:"tiles"`
	Cities []cityView `json:"cities"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HandleCitiesList serves the configured cities with their load state.
func (s *ServerContext) HandleCitiesList(w http.ResponseWriter, r *http.Request) {
	resp := citiesResponse{
		Tiles: tilesView{
			URL:         s.Config.Tiles.URL,
			Subdomains:  s.Config.Tiles.Subdomains,
			MaxZoom:     s.Config.Tiles.MaxZoom,
			Attribution: s.Config.Attribution,
		},
		Cities: make([]cityView, 0, len(s.Config.Cities)),
	}
	for _, city := range s.Atlas.Cities() {
		st, _ := s.Atlas.Status(city.Name)
		resp.Cities = append(resp.Cities, cityView{City: city, State: st})
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleCity serves per-city resources.
// Path: /api/cities/{city}/{geojson|stats|legend|tooltip|reload}
func (s *ServerContext) HandleCity(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 {
		http.NotFound(w, r)
		return
	}

	city, ok := s.Atlas.Resolve(parts[2])
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown city %q", parts[2]))
		return
	}

	action := parts[3]
	if action == "reload" {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "reload requires POST")
			return
		}
		if err := s.Atlas.Reload(city); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"city": city, "status": string(atlas.StatusLoading)})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch action {
	case "geojson":
		s.serveGeoJSON(w, r, city)
	case "stats":
		snapshot, _ := s.Atlas.Statistics(city)
		writeJSON(w, http.StatusOK, snapshot)
	case "legend":
		legend, _ := s.Atlas.Legend(city)
		writeJSON(w, http.StatusOK, legend)
	case "tooltip":
		s.serveTooltip(w, r, city)
	default:
		http.NotFound(w, r)
	}
}

func (s *ServerContext) serveGeoJSON(w http.ResponseWriter, r *http.Request, city string) {
	ctrl, _ := s.Atlas.Controller(city)
	st, _ := s.Atlas.Status(city)

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, int64(st.Features), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, st.UpdatedAt.UnixNano(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	// check If-None-Match (client sent ETag)
	if match := r.Header.Get("If-None-Match"); match == etag && st.Status == atlas.StatusSuccess {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	layer, err := ctrl.DataLayer(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	var data []byte
	if layer == nil {
		data = []byte(`{"type":"FeatureCollection","features":[]}`)
	} else if data, err = layer.Collection().MarshalJSON(); err != nil {
		log.Error().Err(err).Str("city", city).Msg("Failed to encode data layer")
		writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("X-Load-Status", string(st.Status))
	if st.Status == atlas.StatusSuccess {
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, no-cache")
	}
	_, _ = w.Write(data)
}

func (s *ServerContext) serveTooltip(w http.ResponseWriter, r *http.Request, city string) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	ctrl, _ := s.Atlas.Controller(city)
	tip, ok := ctrl.FeatureAt(r.Context(), orb.Point{lon, lat})
	if !ok {
		writeError(w, http.StatusNotFound, "no building at this position")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"tooltip": tip})
}

// HandleMapImage renders a city surface.
// Path: /maps/{city}/view.{webp|png}?w=&h=
func (s *ServerContext) HandleMapImage(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		http.NotFound(w, r)
		return
	}

	city, ok := s.Atlas.Resolve(parts[1])
	if !ok {
		http.NotFound(w, r)
		return
	}

	format := strings.TrimPrefix(path.Ext(parts[2]), ".")
	if strings.TrimSuffix(parts[2], path.Ext(parts[2])) != "view" || (format != "webp" && format != "png") {
		http.NotFound(w, r)
		return
	}

	ctrl, _ := s.Atlas.Controller(city)

	var size image.Point
	if q := r.URL.Query(); q.Get("w") != "" || q.Get("h") != "" {
		width, errW := strconv.Atoi(q.Get("w"))
		height, errH := strconv.Atoi(q.Get("h"))
		if errW != nil || errH != nil || width <= 0 || height <= 0 || width > MaxImageSize || height > MaxImageSize {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("w and h must be within 1..%d", MaxImageSize))
			return
		}
		size = image.Pt(width, height)
	}

	img, err := ctrl.RenderSize(r.Context(), size)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, surface.ErrDisposed) || errors.Is(err, surface.ErrNotAttached) || errors.Is(err, surface.ErrEmptySize) {
			status = http.StatusServiceUnavailable
		}
		log.Error().Err(err).Str("city", city).Msg("Failed to render surface")
		writeError(w, status, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := surface.Encode(&buf, img, format, s.Config.Tiles.Quality); err != nil {
		log.Error().Err(err).Str("city", city).Msg("Failed to encode surface")
		writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}

	w.Header().Set("Content-Type", surface.ContentType(format))
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

// HandleFavicon serves the site favicon.
func (s *ServerContext) HandleFavicon(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/favicon.ico" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(s.Favicon)
}

// HandleIndex serves the main HTML application.
func (s *ServerContext) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && strings.Contains(r.URL.Path, ".") {
		http.NotFound(w, r)
		return
	}

	etag := fmt.Sprintf(`"%x"`, len(s.IndexHTML))

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	_, _ = w.Write(s.IndexHTML)
}

// Routes registers all handlers on a new mux.
func (s *ServerContext) Routes(metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cities", s.HandleCitiesList)
	mux.HandleFunc("/api/cities/", s.HandleCity)
	mux.HandleFunc("/maps/", s.HandleMapImage)
	mux.HandleFunc("/favicon.ico", s.HandleFavicon)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	mux.HandleFunc("/", s.HandleIndex)
	return mux
}
