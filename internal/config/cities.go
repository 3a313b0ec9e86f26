package config

// DefaultZoom is the fixed display zoom of every city view.
const DefaultZoom = 15

// View is the built-in framing of a city.
type View struct {
	Title string
	Lat   float64
	Lon   float64
	Zoom  int
}

// Names is the closed set of municipalities, in display order.
var Names = []string{"begur", "gava", "mataro", "olot"}

// Defaults holds the fixed display center of each municipality.
var Defaults = map[string]View{
	"begur":  {Title: "Begur", Lat: 41.95, Lon: 3.21, Zoom: DefaultZoom},
	"gava":   {Title: "Gavà", Lat: 41.30, Lon: 2.00, Zoom: DefaultZoom},
	"mataro": {Title: "Mataró", Lat: 41.54, Lon: 2.44, Zoom: DefaultZoom},
	"olot":   {Title: "Olot", Lat: 42.18, Lon: 2.49, Zoom: DefaultZoom},
}
