package geo

import "math"

// Position is a WGS84 coordinate pair.
type Position struct {
	Lat float64 `json:"lat" yaml:"lat" mapstructure:"lat"`
	Lon float64 `json:"lon" yaml:"lon" mapstructure:"lon"`
}

// Distance returns the planar distance between two positions in degrees.
// Delivery ranges are small enough (a campus, a neighbourhood) that the
// flat-earth approximation used by the flight controller is kept here so
// arrival detection agrees with it.
func Distance(a, b Position) float64 {
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

// Step moves from cur toward dst by at most step degrees and reports whether
// dst was reached.
func Step(cur, dst Position, step float64) (Position, bool) {
	d := Distance(cur, dst)
	if d <= step {
		return dst, true
	}
	ratio := step / d
	return Position{
		Lat: cur.Lat + (dst.Lat-cur.Lat)*ratio,
		Lon: cur.Lon + (dst.Lon-cur.Lon)*ratio,
	}, false
}
