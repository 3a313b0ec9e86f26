package geo

import (
	"fmt"
	"math"
)

// Ellipsoid describes a reference ellipsoid by semi-major axis and flattening.
type Ellipsoid struct {
	A float64 // semi-major axis, meters
	F float64 // flattening
}

var (
	// GRS80 is the ellipsoid used by ETRS89 projected systems.
	GRS80 = Ellipsoid{A: 6378137.0, F: 1 / 298.257222101}
	// WGS84 is the ellipsoid of the WGS84 datum.
	WGS84 = Ellipsoid{A: 6378137.0, F: 1 / 298.257223563}
)

// UTM31N is ETRS89 / UTM zone 31N (EPSG:25831). The datum shift to WGS84 is zero,
// so geographic output is used as WGS84 longitude/latitude as is.
var UTM31N = NewUTM(31, true, GRS80)

// Transformer converts a projected coordinate pair to geographic degrees.
type Transformer interface {
	Transform(x, y float64) (lon, lat float64, err error)
}

// TransformerFunc adapts a plain function to Transformer.
type TransformerFunc func(x, y float64) (float64, float64, error)

// Transform calls f(x, y).
func (f TransformerFunc) Transform(x, y float64) (float64, float64, error) {
	return f(x, y)
}

// TransformError reports a coordinate pair outside the projection domain.
type TransformError struct {
	X, Y   float64
	Reason string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform (%g, %g): %s", e.X, e.Y, e.Reason)
}

// UTM is a Universal Transverse Mercator zone on a given ellipsoid.
// Conversions use the 6th order Krüger series, accurate to well below a
// millimeter inside the zone.
type UTM struct {
	Ellipsoid     Ellipsoid
	Zone          int
	North         bool
	K0            float64
	FalseEasting  float64
	FalseNorthing float64

	lon0  float64 // central meridian, radians
	e     float64 // first eccentricity
	a     float64 // rectifying radius times k0
	alpha [6]float64
	beta  [6]float64
}

// NewUTM builds a UTM zone. Southern zones use the 10 000 km false northing.
func NewUTM(zone int, north bool, el Ellipsoid) *UTM {
	u := &UTM{
		Ellipsoid:    el,
		Zone:         zone,
		North:        north,
		K0:           0.9996,
		FalseEasting: 500000,
	}
	if !north {
		u.FalseNorthing = 10000000
	}

	u.lon0 = float64(zone*6-183) * math.Pi / 180
	u.e = math.Sqrt(el.F * (2 - el.F))

	n := el.F / (2 - el.F)
	n2, n3 := n*n, n*n*n
	n4, n5, n6 := n3*n, n3*n2, n3*n3

	u.a = u.K0 * el.A / (1 + n) * (1 + n2/4 + n4/64 + n6/256)

	u.alpha = [6]float64{
		n/2 - 2*n2/3 + 5*n3/16 + 41*n4/180 - 127*n5/288 + 7891*n6/37800,
		13*n2/48 - 3*n3/5 + 557*n4/1440 + 281*n5/630 - 1983433*n6/1935360,
		61*n3/240 - 103*n4/140 + 15061*n5/26880 + 167603*n6/181440,
		49561*n4/161280 - 179*n5/168 + 6601661*n6/7257600,
		34729*n5/80640 - 3418889*n6/1995840,
		212378941 * n6 / 319334400,
	}
	u.beta = [6]float64{
		n/2 - 2*n2/3 + 37*n3/96 - n4/360 - 81*n5/512 + 96199*n6/604800,
		n2/48 + n3/15 - 437*n4/1440 + 46*n5/105 - 1118711*n6/3870720,
		17*n3/480 - 37*n4/840 - 209*n5/4480 + 5569*n6/90720,
		4397*n4/161280 - 11*n5/504 - 830251*n6/7257600,
		4583*n5/161280 - 108847*n6/3991680,
		20648693 * n6 / 638668800,
	}

	return u
}

// Transform converts easting/northing in meters to longitude/latitude in degrees.
func (u *UTM) Transform(x, y float64) (lon, lat float64, err error) {
	if !finite(x) || !finite(y) {
		return 0, 0, &TransformError{X: x, Y: y, Reason: "non-finite coordinate"}
	}

	xi := (y - u.FalseNorthing) / u.a
	eta := (x - u.FalseEasting) / u.a

	if math.Abs(xi) > math.Pi/2 {
		return 0, 0, &TransformError{X: x, Y: y, Reason: "northing beyond the pole"}
	}
	if math.Abs(eta) > math.Pi {
		return 0, 0, &TransformError{X: x, Y: y, Reason: "easting too far from the central meridian"}
	}

	xiP, etaP := xi, eta
	for j := 1; j <= 6; j++ {
		b := u.beta[j-1]
		k := 2 * float64(j)
		xiP -= b * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= b * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	sinhEta := math.Sinh(etaP)
	cosXi := math.Cos(xiP)
	tauP := math.Sin(xiP) / math.Hypot(sinhEta, cosXi)

	tau := u.tauFromTauPrime(tauP)

	lat = math.Atan(tau) * 180 / math.Pi
	lon = (u.lon0 + math.Atan2(sinhEta, cosXi)) * 180 / math.Pi

	if !finite(lon) || !finite(lat) || math.Abs(lat) > 90 {
		return 0, 0, &TransformError{X: x, Y: y, Reason: "result outside geographic range"}
	}

	return lon, lat, nil
}

// Forward converts longitude/latitude in degrees to easting/northing in meters.
func (u *UTM) Forward(lon, lat float64) (x, y float64, err error) {
	if !finite(lon) || !finite(lat) || math.Abs(lat) > 90 {
		return 0, 0, &TransformError{X: lon, Y: lat, Reason: "invalid geographic coordinate"}
	}

	phi := lat * math.Pi / 180
	lambda := lon*math.Pi/180 - u.lon0

	tau := math.Tan(phi)
	sigma := math.Sinh(u.e * math.Atanh(u.e*tau/math.Sqrt(1+tau*tau)))
	tauP := tau*math.Sqrt(1+sigma*sigma) - sigma*math.Sqrt(1+tau*tau)

	xiP := math.Atan2(tauP, math.Cos(lambda))
	etaP := math.Asinh(math.Sin(lambda) / math.Sqrt(tauP*tauP+math.Cos(lambda)*math.Cos(lambda)))

	xi, eta := xiP, etaP
	for j := 1; j <= 6; j++ {
		a := u.alpha[j-1]
		k := 2 * float64(j)
		xi += a * math.Sin(k*xiP) * math.Cosh(k*etaP)
		eta += a * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}

	x = u.FalseEasting + u.a*eta
	y = u.FalseNorthing + u.a*xi

	if !finite(x) || !finite(y) {
		return 0, 0, &TransformError{X: lon, Y: lat, Reason: "result not finite"}
	}

	return x, y, nil
}

// tauFromTauPrime inverts the conformal latitude relation with Newton's method.
func (u *UTM) tauFromTauPrime(tauP float64) float64 {
	e2m := 1 - u.e*u.e
	tau := tauP

	for i := 0; i < 8; i++ {
		sigma := math.Sinh(u.e * math.Atanh(u.e*tau/math.Sqrt(1+tau*tau)))
		tauI := tau*math.Sqrt(1+sigma*sigma) - sigma*math.Sqrt(1+tau*tau)
		d := (tauP - tauI) / math.Sqrt(1+tauI*tauI) *
			(1 + e2m*tau*tau) / (e2m * math.Sqrt(1+tau*tau))
		tau += d
		if math.Abs(d) < 1e-14 {
			break
		}
	}

	return tau
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
