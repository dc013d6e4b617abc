package spatial

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/dvf-flood/internal/model"
)

// Lambert-93 (EPSG:2154): conic conformal on GRS80, standard parallels 44°
// and 49°, origin 46.5°N 3°E, false easting 700 km, false northing 6600 km.
const (
	l93A     = 6378137.0
	l93InvF  = 298.257222101
	l93Lat1  = 49.0
	l93Lat2  = 44.0
	l93Lat0  = 46.5
	l93Lon0  = 3.0
	l93X0    = 700000.0
	l93Y0    = 6600000.0
	l93Iters = 12
)

var l93E = math.Sqrt(2/l93InvF - 1/(l93InvF*l93InvF))

var l93N, l93F, l93Rho0 float64

func init() {
	p1, p2, p0 := deg2rad(l93Lat1), deg2rad(l93Lat2), deg2rad(l93Lat0)
	m1, m2 := lccM(p1), lccM(p2)
	t1, t2, t0 := lccT(p1), lccT(p2), lccT(p0)
	l93N = (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	l93F = m1 / (l93N * math.Pow(t1, l93N))
	l93Rho0 = l93A * l93F * math.Pow(t0, l93N)
}

func lccM(phi float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-l93E*l93E*s*s)
}

func lccT(phi float64) float64 {
	s := math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-l93E*s)/(1+l93E*s), l93E/2)
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

// ToLambert93 projects a WGS84 coordinate to Lambert-93 metres.
func ToLambert93(c model.Coordinate) (x, y float64) {
	phi, lambda := deg2rad(c.Lat), deg2rad(c.Lon)
	rho := l93A * l93F * math.Pow(lccT(phi), l93N)
	theta := l93N * (lambda - deg2rad(l93Lon0))
	return l93X0 + rho*math.Sin(theta), l93Y0 + l93Rho0 - rho*math.Cos(theta)
}

// FromLambert93 converts Lambert-93 metres back to WGS84.
func FromLambert93(x, y float64) model.Coordinate {
	dx := x - l93X0
	dy := l93Rho0 - (y - l93Y0)
	rho := math.Copysign(math.Hypot(dx, dy), l93N)
	theta := math.Atan2(dx, dy)
	t := math.Pow(rho/(l93A*l93F), 1/l93N)

	phi := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < l93Iters; i++ {
		s := math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-l93E*s)/(1+l93E*s), l93E/2))
		if math.Abs(next-phi) < 1e-12 {
			phi = next
			break
		}
		phi = next
	}

	return model.Coordinate{Lat: rad2deg(phi), Lon: rad2deg(theta/l93N) + l93Lon0}
}

// reprojectLambert93 rewrites a Lambert-93 multipolygon in place as WGS84
// lon/lat.
func reprojectLambert93(mp *geom.MultiPolygon) *geom.MultiPolygon {
	flat := mp.FlatCoords()
	stride := mp.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		c := FromLambert93(flat[i], flat[i+1])
		flat[i], flat[i+1] = c.Lon, c.Lat
	}
	return mp.SetSRID(4326)
}
